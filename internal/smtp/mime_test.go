package smtp

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEmailPlainText(t *testing.T) {
	raw := []byte("From: alice@example.net\r\n" +
		"To: support@example.com\r\n" +
		"Subject: greetings\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"hello world\r\n")

	parsed, err := ParseEmail(raw)

	require.NoError(t, err)
	assert.Equal(t, "greetings", parsed.Subject)
	assert.Equal(t, "alice@example.net", parsed.From)
	assert.Contains(t, parsed.Text, "hello world")
	assert.Empty(t, parsed.HTML)
	assert.Empty(t, parsed.Attachments)
}

func TestParseEmailEncodedSubject(t *testing.T) {
	// RFC 2047 Base64 编码的中文主题
	raw := []byte("From: alice@example.net\r\n" +
		"Subject: =?UTF-8?B?5L2g5aW9?=\r\n" +
		"\r\n" +
		"body\r\n")

	parsed, err := ParseEmail(raw)

	require.NoError(t, err)
	assert.Equal(t, "你好", parsed.Subject)
}

func TestParseEmailMultipart(t *testing.T) {
	raw := []byte("From: alice@example.net\r\n" +
		"To: support@example.com\r\n" +
		"Subject: multipart\r\n" +
		"Content-Type: multipart/alternative; boundary=BOUND\r\n" +
		"\r\n" +
		"--BOUND\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"\r\n" +
		"plain version\r\n" +
		"--BOUND\r\n" +
		"Content-Type: text/html; charset=utf-8\r\n" +
		"\r\n" +
		"<p>html version</p>\r\n" +
		"--BOUND--\r\n")

	parsed, err := ParseEmail(raw)

	require.NoError(t, err)
	assert.Contains(t, parsed.Text, "plain version")
	assert.Contains(t, parsed.HTML, "html version")
}

func TestParseEmailAttachment(t *testing.T) {
	content := base64.StdEncoding.EncodeToString([]byte("attachment payload"))
	raw := []byte("From: alice@example.net\r\n" +
		"Subject: with attachment\r\n" +
		"Content-Type: multipart/mixed; boundary=BOUND\r\n" +
		"\r\n" +
		"--BOUND\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"see attached\r\n" +
		"--BOUND\r\n" +
		"Content-Type: application/octet-stream; name=data.bin\r\n" +
		"Content-Disposition: attachment; filename=data.bin\r\n" +
		"Content-Transfer-Encoding: base64\r\n" +
		"\r\n" +
		content + "\r\n" +
		"--BOUND--\r\n")

	parsed, err := ParseEmail(raw)

	require.NoError(t, err)
	assert.Contains(t, parsed.Text, "see attached")
	require.Len(t, parsed.Attachments, 1)

	att := parsed.Attachments[0]
	assert.Equal(t, "data.bin", att.Filename)
	assert.Equal(t, "application/octet-stream", att.ContentType)
	assert.Equal(t, []byte("attachment payload"), att.Content)
	assert.Equal(t, int64(len("attachment payload")), att.Size)
}

func TestParseEmailQuotedPrintable(t *testing.T) {
	raw := []byte("From: alice@example.net\r\n" +
		"Subject: qp\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n" +
		"Content-Transfer-Encoding: quoted-printable\r\n" +
		"\r\n" +
		"caf=C3=A9\r\n")

	parsed, err := ParseEmail(raw)

	require.NoError(t, err)
	assert.Contains(t, parsed.Text, "café")
}

func TestParseEmailNoHeaders(t *testing.T) {
	_, err := ParseEmail([]byte("not an email at all"))

	assert.Error(t, err)
}

func TestDecodeHeader(t *testing.T) {
	assert.Equal(t, "plain", decodeHeader("plain"))
	assert.Equal(t, "", decodeHeader(""))
	assert.Equal(t, "你好", decodeHeader("=?UTF-8?B?5L2g5aW9?="))
}
