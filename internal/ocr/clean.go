package ocr

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	zeroWidthChars     = regexp.MustCompile("[\u200B-\u200D\uFEFF\u00AD\u2060]")
	standaloneImgName  = regexp.MustCompile(`(?mi)^[\w-]*(?:img|image|figure|fig|photo|pic)[\w-]*\.(jpeg|jpg|png|gif|webp|svg|bmp|tiff?)[ \t]*$`)
	standaloneFileName = regexp.MustCompile(`(?mi)^[\w-]+\.(jpeg|jpg|png|gif|webp|svg|bmp|tiff?)[ \t]*$`)
	markdownImage      = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
	trailingSpaces     = regexp.MustCompile(`(?m)[ \t]+$`)
)

// CleanText normalizes recognized text: NFKC (ligatures, full-width digits),
// no invisible characters, no stray image file names, \n line endings.
func CleanText(text string) string {
	if text == "" {
		return ""
	}
	text = norm.NFKC.String(text)
	text = zeroWidthChars.ReplaceAllString(text, "")
	text = markdownImage.ReplaceAllString(text, "")
	text = standaloneImgName.ReplaceAllString(text, "")
	text = standaloneFileName.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = trailingSpaces.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}
