package config

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/marmos91/dittodav/pkg/expand"
	"github.com/marmos91/dittodav/pkg/vpath"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()

	// Report fields under their configuration file names
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("mapstructure"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
}

// FieldError describes one invalid configuration field.
type FieldError struct {
	// Field is the dotted path of the offending field, e.g.
	// "repositories[0].mounts[1].path".
	Field string

	// Rule is the failed rule: a validator tag such as "required", or a
	// custom rule such as "unique".
	Rule string

	Message string
}

func (e FieldError) String() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError lists every problem found in a configuration.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		msgs[i] = fe.String()
	}
	return strings.Join(msgs, "; ")
}

// Has reports whether field failed rule.
func (e *ValidationError) Has(field, rule string) bool {
	for _, fe := range e.Errors {
		if fe.Field == field && fe.Rule == rule {
			return true
		}
	}
	return false
}

func (e *ValidationError) add(field, rule, format string, args ...any) {
	e.Errors = append(e.Errors, FieldError{Field: field, Rule: rule, Message: fmt.Sprintf(format, args...)})
}

// Validate validates the configuration using struct tags and custom rules.
//
// This function uses go-playground/validator for declarative validation
// via struct tags, with additional custom validation for complex rules
// that cannot be expressed in tags.
//
// Note: Log level normalization is handled in ApplyDefaults, not here.
// Validation accepts both uppercase and lowercase log levels.
//
// Returns a *ValidationError describing every failure, or nil.
func Validate(cfg *Config) error {
	verr := &ValidationError{}

	if err := validate.Struct(cfg); err != nil {
		collectTagErrors(verr, "", err)
	}

	validateCustomRules(cfg, verr)

	if len(verr.Errors) > 0 {
		return verr
	}
	return nil
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config, verr *ValidationError) {
	if len(cfg.Repositories) == 0 {
		verr.add("repositories", "required", "at least one repository must be configured")
	}

	if cfg.Auth.Cache.Type == "badger" && cfg.Auth.Cache.Badger.Path == "" {
		verr.add("auth.cache.badger.path", "required", "required when the cache type is badger")
	}

	names := make(map[string]int)
	for i, repo := range cfg.Repositories {
		field := fmt.Sprintf("repositories[%d]", i)

		if first, dup := names[repo.Name]; dup && repo.Name != "" {
			verr.add(field+".name", "unique", "duplicate repository name %q (also used by repositories[%d])", repo.Name, first)
		} else {
			names[repo.Name] = i
		}

		var domain *regexp.Regexp
		if repo.Domain != "" {
			re, err := regexp.Compile(repo.Domain)
			if err != nil {
				verr.add(field+".domain", "regexp", "invalid pattern: %v", err)
			} else {
				domain = re
			}
		}

		if repo.AuthenticationURL != "" {
			if err := checkAuthenticationURL(repo.AuthenticationURL); err != nil {
				verr.add(field+".authentication_url", "url", "%v", err)
			}
		}

		validateMounts(field, repo.Mounts, domain, verr)
	}

	if !cfg.Adapters.WebDAV.Enabled {
		verr.add("adapters", "required", "at least one adapter must be enabled")
	}
}

// validateMounts checks mount paths and decodes each mount's options so that
// backend errors surface at load time. When domain is known, root templates
// may only use the request variables and the named groups of domain.
func validateMounts(repoField string, mounts []MountConfig, domain *regexp.Regexp, verr *ValidationError) {
	paths := make(map[string]int)

	for j, m := range mounts {
		field := fmt.Sprintf("%s.mounts[%d]", repoField, j)

		// Relative paths are reported by the startswith tag
		if strings.HasPrefix(m.Path, vpath.Separator) {
			key := vpath.New(m.Path).Clean().String()
			if first, dup := paths[key]; dup {
				verr.add(field+".path", "unique", "duplicate mount path %q (also used by mounts[%d])", m.Path, first)
			} else {
				paths[key] = j
			}
		}

		switch m.Type {
		case MountLocal, MountS3, MountMinio, MountMemory:
		default:
			// Reported by the oneof tag
			continue
		}

		opts, err := MountOptions(m)
		if err != nil {
			var ve validator.ValidationErrors
			if errors.As(err, &ve) {
				collectTagErrors(verr, field+".options", err)
				continue
			}
			verr.add(field+".options", "decode", "%v", err)
			continue
		}

		if domain != nil {
			for _, name := range expand.Names(mountRoot(opts)) {
				if !isRequestVariable(name, domain) {
					verr.add(field+".options.root", "template",
						"{{%s}} is neither a request variable nor a named group of the domain pattern", name)
				}
			}
		}
	}
}

// isRequestVariable reports whether name is filled for every request that
// matches domain.
func isRequestVariable(name string, domain *regexp.Regexp) bool {
	if name == "host" || name == "remote_addr" {
		return true
	}
	return domain.SubexpIndex(name) > 0
}

// checkAuthenticationURL parses the template with its placeholders filled in.
func checkAuthenticationURL(raw string) error {
	filled := strings.NewReplacer("{{identification}}", "user", "{{password}}", "secret").Replace(raw)

	u, err := url.Parse(filled)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("host is required")
	}
	return nil
}

// collectTagErrors converts validator errors into field errors.
func collectTagErrors(verr *ValidationError, prefix string, err error) {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		verr.add(strings.TrimSuffix(prefix, "."), "invalid", "%v", err)
		return
	}

	for _, e := range validationErrs {
		field := configFieldPath(e.Namespace())
		if prefix != "" {
			field = prefix + "." + field
		}
		verr.add(field, e.Tag(), "validation failed on '%s' tag (value: %v)", e.Tag(), e.Value())
	}
}

// configFieldPath drops the root struct name from a validator namespace
// such as "Config.repositories[0].mounts[1].path".
func configFieldPath(namespace string) string {
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		return rest
	}
	return namespace
}
