package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var normalizeCases = map[string]string{
	"":                                   "",
	"acme.example.com":                   "acme.example.com",
	"  ACME.Example.COM  ":               "acme.example.com",
	"acme.example.com.":                  "acme.example.com",
	"acme.example.com:8080":              "acme.example.com",
	"https://acme.example.com/login?x=1": "acme.example.com",
	"http://user:pw@acme.example.com:81": "acme.example.com",
	"[::1]:8080":                         "::1",
	"acme.example.com#frag":              "acme.example.com",
	"acme.com .":                         "acme.com",
	"https:// acme.com":                  "acme.com",
	"acme.com :8080":                     "acme.com",
	"acme.com. .":                        "acme.com",
	"https://https://acme.com":           "acme.com",
}

func TestNormalizeDomain(t *testing.T) {
	for in, want := range normalizeCases {
		assert.Equal(t, want, NormalizeDomain(in), "input %q", in)
	}
}

func TestNormalizeDomainIsIdempotent(t *testing.T) {
	inputs := []string{"  .", " : ", "a.b. : .", "[ ::1 ]:80", "HTTP://X.COM./ "}
	for in := range normalizeCases {
		inputs = append(inputs, in)
	}
	for _, in := range inputs {
		once := NormalizeDomain(in)
		assert.Equal(t, once, NormalizeDomain(once), "input %q", in)
	}
}
