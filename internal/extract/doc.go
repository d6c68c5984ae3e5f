// Package extract turns recognized text into a short, ranked list of
// medication name candidates.
//
// Two extractors share one set of Rules. WordExtractor uses word geometry:
// brand names sit near the top of the package and are printed large or in
// capitals. TextExtractor works on plain lines when no geometry is available
// and is also the fallback when no word qualifies. Both drop denylisted
// dosage, form and descriptor terms and de-duplicate under case and
// diacritic folding.
//
// The knowledge (denylists, patterns, thresholds and caps) lives in
// Heuristics, which can be loaded from JSON.
package extract
