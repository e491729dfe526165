package utils

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/net/html/charset"
)

// DecodeMarkup converts uploaded document bytes to a UTF-8 string. Valid
// UTF-8 passes through untouched; anything else is sniffed with chardet and
// transcoded.
func DecodeMarkup(data []byte) (string, error) {
	if utf8.Valid(data) {
		return string(data), nil
	}

	detector := chardet.NewTextDetector()
	result, err := detector.DetectBest(data)
	if err != nil || result == nil {
		return "", fmt.Errorf("failed to detect charset: %w", err)
	}

	reader, err := charset.NewReaderLabel(encodingLabel(result.Charset), bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("unsupported charset %s: %w", result.Charset, err)
	}

	decoded, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("failed to decode %s: %w", result.Charset, err)
	}
	return string(decoded), nil
}

// chardetLabels maps chardet charset names that are not WHATWG labels
var chardetLabels = map[string]string{
	"gb-18030": "gb18030",
}

// encodingLabel converts a chardet charset name into a label known to the
// html charset index
func encodingLabel(name string) string {
	label := strings.ToLower(name)
	if mapped, ok := chardetLabels[label]; ok {
		return mapped
	}
	return label
}
