package email

import (
	"bytes"
	"fmt"
	"html"
	"mime"
	"mime/multipart"
	"net/textproto"
	"regexp"
	"strings"
	"time"
)

// buildMessage builds an RFC 5322 message with plain-text and HTML alternatives.
// Each multipart message gets a fresh random boundary.
func buildMessage(from string, to []string, subject, text, htmlBody string, now time.Time) ([]byte, error) {
	var msg bytes.Buffer

	msg.WriteString(fmt.Sprintf("From: %s\r\n", from))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(to, ", ")))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject)))
	msg.WriteString(fmt.Sprintf("Date: %s\r\n", now.Format(time.RFC1123Z)))
	msg.WriteString("MIME-Version: 1.0\r\n")

	if htmlBody == "" {
		msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
		msg.WriteString("Content-Transfer-Encoding: 8bit\r\n\r\n")
		msg.WriteString(text)
		return msg.Bytes(), nil
	}

	var body bytes.Buffer
	parts := multipart.NewWriter(&body)
	if text != "" {
		if err := writePart(parts, "text/plain", text); err != nil {
			return nil, err
		}
	}
	if err := writePart(parts, "text/html", htmlBody); err != nil {
		return nil, err
	}
	if err := parts.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart body: %w", err)
	}

	msg.WriteString(fmt.Sprintf("Content-Type: multipart/alternative; boundary=%q\r\n\r\n", parts.Boundary()))
	msg.Write(body.Bytes())
	return msg.Bytes(), nil
}

func writePart(parts *multipart.Writer, contentType, content string) error {
	header := textproto.MIMEHeader{}
	header.Set("Content-Type", contentType+"; charset=UTF-8")
	header.Set("Content-Transfer-Encoding", "8bit")
	part, err := parts.CreatePart(header)
	if err != nil {
		return fmt.Errorf("failed to create %s part: %w", contentType, err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		return fmt.Errorf("failed to write %s part: %w", contentType, err)
	}
	return nil
}

var (
	tagPattern   = regexp.MustCompile(`<[^>]*>`)
	blockPattern = regexp.MustCompile(`(?i)</?(p|div|br|tr|h[1-6]|li)[^>]*>`)
	spacePattern = regexp.MustCompile(`[ \t]+`)
	linesPattern = regexp.MustCompile(`\n{3,}`)
)

// htmlToText produces a readable plain-text fallback for an HTML body
func htmlToText(body string) string {
	if body == "" {
		return ""
	}
	text := blockPattern.ReplaceAllString(body, "\n")
	text = tagPattern.ReplaceAllString(text, "")
	text = html.UnescapeString(text)
	text = spacePattern.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text = strings.Join(lines, "\n")
	text = linesPattern.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
