package fetch

import (
	"bytes"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

func PDFToText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", err
	}
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(buf.String(), " ")), nil
}
