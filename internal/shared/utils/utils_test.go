package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/simplifiedchinese"
)

func TestHasherDeterministic(t *testing.T) {
	for _, algo := range []HashAlgorithm{SHA256, BLAKE2b} {
		h := NewHasher(algo)
		assert.Equal(t, h.HashString("abc"), h.HashString("abc"), algo)
		assert.NotEqual(t, h.HashString("abc"), h.HashString("abd"), algo)
		assert.Len(t, h.HashString("abc"), 64, algo)
	}
}

func TestHashFieldsOrderIndependent(t *testing.T) {
	h := DefaultHasher()
	assert.Equal(t, h.HashFields("a", "b"), h.HashFields("b", "a"))
}

func TestValidateID(t *testing.T) {
	tests := []struct {
		id      string
		wantErr bool
	}{
		{"game_01HZX", false},
		{"", true},
		{"../etc/passwd", true},
		{"a b", true},
	}

	for _, tt := range tests {
		err := ValidateID(tt.id, "id", true)
		assert.Equal(t, tt.wantErr, err != nil, tt.id)
	}
}

func TestValidateIDs(t *testing.T) {
	assert.Error(t, ValidateIDs(nil, "ids"))
	assert.NoError(t, ValidateIDs([]string{"a", "b"}, "ids"))
	assert.Error(t, ValidateIDs([]string{"a", "b/c"}, "ids"))
}

func TestValidateMarkup(t *testing.T) {
	assert.Error(t, ValidateMarkup(""))
	assert.NoError(t, ValidateMarkup("<p>hi</p>"))
}

func TestSafeFileName(t *testing.T) {
	assert.Equal(t, "Snake_Game", SafeFileName("Snake Game"))
	assert.Equal(t, "数学_冒险", SafeFileName("数学/冒险"))
	assert.Equal(t, "untitled", SafeFileName(""))
}

func TestDecodeMarkupUTF8Passthrough(t *testing.T) {
	out, err := DecodeMarkup([]byte("<p>正确</p>"))
	require.NoError(t, err)
	assert.Equal(t, "<p>正确</p>", out)
}

func TestDecodeMarkupGB18030(t *testing.T) {
	text := "<html><body><p>这是一个简单的数学游戏，点击按钮回答问题，答对得分，答错扣分。</p></body></html>"
	encoded, err := simplifiedchinese.GB18030.NewEncoder().String(text)
	require.NoError(t, err)

	out, err := DecodeMarkup([]byte(encoded))
	require.NoError(t, err)
	assert.Equal(t, text, out)
}

func TestEncodingLabel(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"GB-18030", "gb18030"},
		{"Big5", "big5"},
		{"Shift_JIS", "shift_jis"},
		{"windows-1252", "windows-1252"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			label := encodingLabel(tt.name)
			assert.Equal(t, tt.want, label)
			enc, _ := charset.Lookup(label)
			assert.NotNil(t, enc, "label %q must resolve", label)
		})
	}
}
