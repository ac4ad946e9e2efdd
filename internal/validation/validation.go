// Package validation holds the struct validator singleton plus the checker's input rules
// for profiles, usernames, and server URLs.
package validation

import (
	"fmt"
	"net/url"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"golang.org/x/net/publicsuffix"

	"github.com/xkilldash9x/rolecheck/api/schemas"
	"github.com/xkilldash9x/rolecheck/internal/checkerr"
)

// allowedDomains are the registrable domains a server link may point at.
var allowedDomains = map[string]struct{}{
	"discord.com":    {},
	"discordapp.com": {},
}

// minUsernameLength is the shortest username accepted for a check.
const minUsernameLength = 2

// Service holds a validator and its English translator.
type Service struct {
	Validator  *validator.Validate
	Translator ut.Translator
}

var (
	svcOnce sync.Once
	svc     *Service
)

// Get returns the validator singleton, initializing it on first use.
func Get() *Service {
	svcOnce.Do(func() {
		enLoc := en.New()
		uni := ut.New(enLoc, enLoc)
		trans, _ := uni.GetTranslator("en")

		v := validator.New(validator.WithRequiredStructEnabled())

		// prefer mapstructure, then json tag names in messages
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			for _, key := range []string{"mapstructure", "json"} {
				tag := fld.Tag.Get(key)
				if idx := strings.Index(tag, ","); idx >= 0 {
					tag = tag[:idx]
				}
				if tag != "" && tag != "-" {
					return tag
				}
			}
			return fld.Name
		})

		_ = en_translations.RegisterDefaultTranslations(v, trans)
		svc = &Service{Validator: v, Translator: trans}
	})
	return svc
}

// Struct validates s and flattens any field errors into one readable message.
func Struct(s any) error {
	service := Get()
	err := service.Validator.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !asValidationErrors(err, &fieldErrs) {
		return err
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fe.Translate(service.Translator))
	}
	return fmt.Errorf("%s", strings.Join(msgs, "; "))
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	ve, ok := err.(validator.ValidationErrors)
	if ok {
		*target = ve
	}
	return ok
}

// Profile checks that a profile carries everything needed to open and log into a browser.
func Profile(p schemas.Profile) error {
	trimmed := schemas.Profile{
		SerialNumber: strings.TrimSpace(p.SerialNumber),
		Email:        strings.TrimSpace(p.Email),
		Password:     strings.TrimSpace(p.Password),
		Username:     p.Username,
	}
	if err := Struct(trimmed); err != nil {
		return checkerr.Wrap(err, checkerr.KindConfiguration, "validate.profile", "invalid profile")
	}
	return nil
}

// Username checks that a username is long enough to search for.
func Username(username string) error {
	u := strings.TrimSpace(username)
	if u == "" {
		return checkerr.New(checkerr.KindConfiguration, "validate.username", "username is empty")
	}
	if len([]rune(u)) < minUsernameLength {
		return checkerr.Newf(checkerr.KindConfiguration, "validate.username", "username %q is too short", u)
	}
	return nil
}

// ServerURL checks that raw is an http(s) link into the Discord web app and returns it trimmed.
func ServerURL(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", checkerr.New(checkerr.KindConfiguration, "validate.server_url", "server URL is empty")
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", checkerr.Wrap(err, checkerr.KindConfiguration, "validate.server_url", "malformed server URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", checkerr.Newf(checkerr.KindConfiguration, "validate.server_url", "unsupported scheme %q in %s", u.Scheme, s)
	}
	host := strings.ToLower(u.Hostname())
	etld1, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return "", checkerr.Wrap(err, checkerr.KindConfiguration, "validate.server_url", "cannot resolve domain of "+s)
	}
	if _, ok := allowedDomains[etld1]; !ok {
		return "", checkerr.Newf(checkerr.KindConfiguration, "validate.server_url", "%s is not a Discord link", s)
	}
	return s, nil
}
