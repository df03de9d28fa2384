// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"github.com/bassosimone/evhttp/internal/urlsplit"
)

// options contains the command line options.
type options struct {
	Method       string        `flag:"method" validate:"required,oneof=GET POST"`
	URL          string        `flag:"url" validate:"required"`
	AccessToken  string        `flag:"access_token" validate:"required"`
	Resolver     string        `flag:"resolver" validate:"oneof=system udp tcp dot doh"`
	DNSServer    string        `flag:"dns-server" validate:"omitempty,hostname_port"`
	DNSName      string        `flag:"dns-name" validate:"omitempty,hostname"`
	DoHURL       string        `flag:"doh-url" validate:"omitempty,url"`
	Timeout      time.Duration `flag:"timeout" validate:"gt=0"`
	LogLevel     string        `flag:"log-level" validate:"oneof=debug info warn error"`
	PrintHeaders bool          `flag:"i"`
	StripHTML    bool          `flag:"strip-html"`
}

// dnsDefaults holds the default server for each DNS resolver.
var dnsDefaults = map[string]string{
	"udp": "8.8.8.8:53",
	"tcp": "8.8.8.8:53",
	"dot": "8.8.8.8:853",
	"doh": "8.8.8.8:443",
}

// applyDefaults fills the DNS options left empty.
func (o *options) applyDefaults() {
	if o.DNSServer == "" {
		o.DNSServer = dnsDefaults[o.Resolver]
	}
	if o.DNSName == "" {
		o.DNSName = "dns.google"
	}
	if o.DoHURL == "" {
		o.DoHURL = "https://dns.google/dns-query"
	}
}

var (
	validate   *validator.Validate
	translator ut.Translator
)

func init() {
	validate = validator.New()
	var ok bool
	translator, ok = ut.New(en.New(), en.New()).GetTranslator("en")
	if !ok {
		panic("evfetch: failed to get 'en' translator")
	}
	if err := en_translations.RegisterDefaultTranslations(validate, translator); err != nil {
		panic(err)
	}
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return fld.Tag.Get("flag")
	})
}

// fieldError is a validation failure of a single option.
type fieldError struct {
	Field string
	Err   string
}

// fieldErrors is returned by [options.validate].
type fieldErrors []fieldError

// Error implements error.
func (fe fieldErrors) Error() string {
	parts := make([]string, len(fe))
	for i, f := range fe {
		parts[i] = f.Field + ": " + f.Err
	}
	return strings.Join(parts, "; ")
}

// validate checks the options against their declared tags.
func (o *options) validate() error {
	err := validate.Struct(o)
	if err == nil {
		return nil
	}
	verrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	var fields fieldErrors
	for _, verror := range verrors {
		fields = append(fields, fieldError{Field: verror.Field(), Err: verror.Translate(translator)})
	}
	return fields
}

// transport selects TLS and the service to resolve for u.
//
// The scheme may also be a port number, as in "www.example.com:443/".
// An explicit port following a "scheme://host" prefix overrides the
// service implied by the scheme.
func transport(u urlsplit.URL) (useTLS bool, service string, err error) {
	switch u.Scheme {
	case "http", "80":
		useTLS, service = false, "http"
	case "https", "443":
		useTLS, service = true, "https"
	default:
		return false, "", fmt.Errorf("unknown protocol specified: %s", u.Scheme)
	}
	if u.Port != "" && u.Port != u.Scheme {
		service = u.Port
	}
	return useTLS, service, nil
}
