// Package locale holds the language-dependent inputs of the scan pipeline:
// recognizer language hints, character whitelists, status messages, error
// messages and the "nothing found" notice. It does not translate anything
// at runtime; it only selects between the two supported dialects.
package locale

import (
	"strings"

	"github.com/ironsheep/medscan-mcp/internal/apperr"
)

// Language is the UI language flag.
type Language string

const (
	Arabic  Language = "ar"
	English Language = "en"
)

// Parse maps a user-supplied language tag to a supported Language.
// Anything that is not Arabic falls back to English.
func Parse(s string) Language {
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case s == "ar", strings.HasPrefix(s, "ar-"), strings.HasPrefix(s, "ar_"), s == "ara", s == "arabic":
		return Arabic
	default:
		return English
	}
}

// IsArabic reports whether l is the Arabic dialect.
func (l Language) IsArabic() bool { return l == Arabic }

// RecognizerLanguages returns Tesseract language codes in priority order.
func (l Language) RecognizerLanguages() []string {
	if l.IsArabic() {
		return []string{"ara", "eng"}
	}
	return []string{"eng", "ara"}
}

const (
	latinLetters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	digits       = "0123456789"
	punctuation  = "- "
	// Arabic letters U+0621..U+064A plus Arabic-Indic digits.
	arabicLetters = "ءآأؤإئابةتثجحخدذرزسشصضطظعغفقكلمنهوىي"
	arabicDigits  = "٠١٢٣٤٥٦٧٨٩"
)

// Whitelist returns the recognizer character whitelist for l.
func (l Language) Whitelist() string {
	if l.IsArabic() {
		return arabicLetters + arabicDigits + latinLetters + digits + punctuation
	}
	return latinLetters + digits + punctuation
}

var statusMessages = map[Language][]string{
	English: {
		"Reading the package...",
		"Looking for the medication name...",
		"Enhancing the image...",
		"Almost there...",
		"Checking the label text...",
	},
	Arabic: {
		"جارٍ قراءة العبوة...",
		"نبحث عن اسم الدواء...",
		"جارٍ تحسين الصورة...",
		"اقتربنا من الانتهاء...",
		"جارٍ فحص نص الملصق...",
	},
}

// StatusMessages returns the rotating status messages for l.
func (l Language) StatusMessages() []string {
	return statusMessages[l.normalized()]
}

var notFound = map[Language]string{
	English: "No medication found",
	Arabic:  "لم يتم العثور على دواء",
}

// NotFound returns the localized "no medication found" notice.
func (l Language) NotFound() string {
	return notFound[l.normalized()]
}

var retryHint = map[Language]string{
	English: "Try a clearer photo of the package front.",
	Arabic:  "جرّب صورة أوضح لواجهة العبوة.",
}

// RetryHint returns the prompt shown when nothing was found.
func (l Language) RetryHint() string {
	return retryHint[l.normalized()]
}

func (l Language) normalized() Language {
	if l.IsArabic() {
		return Arabic
	}
	return English
}

var errorMessages = map[string]map[Language]string{
	apperr.ReasonNoFile: {
		English: "Please choose an image first.",
		Arabic:  "يرجى اختيار صورة أولاً.",
	},
	apperr.ReasonUnsupportedType: {
		English: "The selected file is not an image.",
		Arabic:  "الملف المختار ليس صورة.",
	},
	apperr.ReasonDecodeFailed: {
		English: "The image could not be read.",
		Arabic:  "تعذّرت قراءة الصورة.",
	},
	apperr.ReasonCameraPermission: {
		English: "Camera access was denied. Allow camera access and try again.",
		Arabic:  "تم رفض الوصول إلى الكاميرا. اسمح بالوصول وحاول مرة أخرى.",
	},
	apperr.ReasonCameraUnavailable: {
		English: "No camera is available on this device.",
		Arabic:  "لا تتوفر كاميرا على هذا الجهاز.",
	},
	apperr.ReasonCameraBusy: {
		English: "The camera is already in use.",
		Arabic:  "الكاميرا قيد الاستخدام بالفعل.",
	},
	apperr.ReasonCaptureFailed: {
		English: "Could not capture a photo.",
		Arabic:  "تعذّر التقاط الصورة.",
	},
	apperr.ReasonEmptyImage: {
		English: "The image is empty.",
		Arabic:  "الصورة فارغة.",
	},
	apperr.ReasonEncodeFailed: {
		English: "The image could not be prepared for reading.",
		Arabic:  "تعذّر تجهيز الصورة للقراءة.",
	},
}

var genericError = map[Language]string{
	English: "Something went wrong while reading the image. Please try again.",
	Arabic:  "حدث خطأ أثناء قراءة الصورة. يرجى المحاولة مرة أخرى.",
}

// ErrorMessage renders err as a localized, user-facing message.
func (l Language) ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	if msgs, ok := errorMessages[apperr.ReasonOf(err)]; ok {
		return msgs[l.normalized()]
	}
	return genericError[l.normalized()]
}
