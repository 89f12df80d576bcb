package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUniqueStrings(t *testing.T) {
	got := uniqueStrings([]string{"nas.lan.", " nas.lan", "", "alpha.lan", "nas.lan"})
	assert.Equal(t, []string{"alpha.lan", "nas.lan"}, got)
	assert.Nil(t, uniqueStrings(nil))
}

func TestNormaliseMAC(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{raw: "aa:bb:cc:dd:ee:ff", want: "AA:BB:CC:DD:EE:FF"},
		{raw: "aa-bb-cc-dd-ee-ff", want: "AA:BB:CC:DD:EE:FF"},
		{raw: "0:1b:63:a:b:c", want: "00:1B:63:0A:0B:0C"},
		{raw: "  192.168.1.1 at 3c:22:fb:01:02:03 on en0", want: "3C:22:FB:01:02:03"},
		{raw: "00:00:00:00:00:00", want: ""},
		{raw: "incomplete", want: ""},
		{raw: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, normaliseMAC(tt.raw))
		})
	}
}
