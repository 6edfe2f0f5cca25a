package link

import (
	"net/url"
	"strings"

	"github.com/skip2/go-qrcode"
)

const whatsAppShareBase = "https://api.whatsapp.com/send?text="

// TrackingURL is the shareable viewer link for a session.
func TrackingURL(base, sessionID string) string {
	return strings.TrimSuffix(base, "/") + "/tracker?session=" + url.QueryEscape(sessionID)
}

// SessionFromURL extracts the session id back out of a tracking link.
func SessionFromURL(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	id := u.Query().Get("session")
	return id, id != ""
}

func QRCode(trackingURL string, size int) ([]byte, error) {
	if size <= 0 {
		size = 256
	}
	qr, err := qrcode.New(trackingURL, qrcode.Medium)
	if err != nil {
		return nil, err
	}
	return qr.PNG(size)
}

func ShareText(trackingURL string) string {
	return "I'm starting a tracked trip. Follow my location live: " + trackingURL
}

// NotificationText is the message pushed to contacts when a session starts.
func NotificationText(trackingURL string) string {
	return "SAFETY ALERT: I'm starting a tracked trip. Location: " + trackingURL
}

func WhatsAppShareURL(text string) string {
	return whatsAppShareBase + url.QueryEscape(text)
}
