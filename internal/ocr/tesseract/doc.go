// Package tesseract binds the ocr capability to Tesseract through gosseract.
//
// One gosseract client backs one ocr.Session, so language models load once
// per scan and are reused for every region. Regions are cropped in memory
// and handed to Tesseract as PNG bytes; word boxes are translated back to
// full-image coordinates before they are returned.
//
// On builds without cgo the package still compiles, but Start returns
// ocr.ErrUnavailable and Info reports the engine as unavailable.
package tesseract
