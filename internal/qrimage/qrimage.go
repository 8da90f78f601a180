// Package qrimage renders check-in URLs as QR PNGs. It is a pure transform:
// no protocol state lives here.
package qrimage

import (
	"fmt"
	"net/url"

	qrcode "github.com/skip2/go-qrcode"
)

// CheckInURL builds the URL a scanned QR resolves to, embedding the session
// id and its current code.
func CheckInURL(base string, sessionID int64, credential string) string {
	return fmt.Sprintf("%s?session=%d&code=%s", base, sessionID, url.QueryEscape(credential))
}

// Encode renders a URL into a PNG of the given pixel size.
func Encode(checkInURL string, size int) ([]byte, error) {
	if size <= 0 {
		size = 256
	}
	return qrcode.Encode(checkInURL, qrcode.Medium, size)
}
