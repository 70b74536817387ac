package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSecureFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"report.pdf", "report.pdf"},
		{"My cool report.pdf", "My_cool_report.pdf"},
		{"../../etc/passwd", "etc_passwd"},
		{`C:\Users\me\doc.pdf`, "C_Users_me_doc.pdf"},
		{"résumé final.pdf", "resume_final.pdf"},
		{"  .hidden.pdf  ", "hidden.pdf"},
		{"报告.pdf", "pdf"},
		{"con.pdf", "_con.pdf"},
		{"...", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SecureFilename(tt.in))
		})
	}
}
