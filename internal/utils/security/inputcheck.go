package security

import (
	"fmt"
	"net/url"
	"reflect"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Limits bounds untrusted strings coming from flags, config files and the
// artifact registry.
type Limits struct {
	MaxString int
	MaxPath   int
	AllowNL   bool
	AllowTab  bool
}

func DefaultLimits() Limits {
	return Limits{
		MaxString: 4096,
		MaxPath:   4096,
		AllowNL:   true,
		AllowTab:  true,
	}
}

func checkRunes(name, s string, max int, lim Limits) error {
	if !utf8.ValidString(s) {
		return fmt.Errorf("%s: invalid UTF-8", name)
	}
	if strings.ContainsRune(s, '\x00') {
		return fmt.Errorf("%s: contains NUL byte", name)
	}
	if n := utf8.RuneCountInString(s); n > max {
		return fmt.Errorf("%s: too long (%d > %d)", name, n, max)
	}
	for _, r := range s {
		switch {
		case r == '\n' && lim.AllowNL:
		case r == '\t' && lim.AllowTab:
		case !unicode.IsPrint(r):
			return fmt.Errorf("%s: contains non-printable/control runes", name)
		}
	}
	return nil
}

// ValidateString rejects invalid UTF-8, NUL bytes, control runes and strings
// longer than lim.MaxString. The empty string is valid.
func ValidateString(name, s string, lim Limits) error {
	if s == "" {
		return nil
	}
	return checkRunes(name, s, lim.MaxString, lim)
}

// ValidatePath is ValidateString with the path length limit and without
// newlines or tabs.
func ValidatePath(name, s string, lim Limits) error {
	if s == "" {
		return nil
	}
	pathLim := lim
	pathLim.AllowNL = false
	pathLim.AllowTab = false
	return checkRunes(name, s, lim.MaxPath, pathLim)
}

// ValidateURL checks that s is an absolute http, https or file URL.
func ValidateURL(name, s string, lim Limits) error {
	if err := ValidatePath(name, s, lim); err != nil {
		return err
	}
	if s == "" {
		return fmt.Errorf("%s: empty URL", name)
	}
	u, err := url.Parse(s)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	switch u.Scheme {
	case "http", "https":
		if u.Host == "" {
			return fmt.Errorf("%s: missing host in %q", name, s)
		}
	case "file":
		if u.Path == "" {
			return fmt.Errorf("%s: missing path in %q", name, s)
		}
	default:
		return fmt.Errorf("%s: unsupported URL scheme %q", name, u.Scheme)
	}
	return nil
}

// ValidateStructStrings walks obj and validates every reachable string.
// Fields whose name contains "path", "file" or "dir" get the path rules.
func ValidateStructStrings(obj any, lim Limits) error {
	return walkValue(reflect.ValueOf(obj), "config", lim, map[uintptr]bool{})
}

func isPathy(name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(lower, "path") || strings.Contains(lower, "file") || strings.Contains(lower, "dir")
}

func walkValue(v reflect.Value, path string, lim Limits, seen map[uintptr]bool) error {
	if !v.IsValid() {
		return nil
	}
	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() || seen[v.Pointer()] {
			return nil
		}
		seen[v.Pointer()] = true
		return walkValue(v.Elem(), path, lim, seen)
	case reflect.Interface:
		if v.IsNil() {
			return nil
		}
		return walkValue(v.Elem(), path, lim, seen)
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < v.NumField(); i++ {
			if !t.Field(i).IsExported() {
				continue
			}
			if err := walkValue(v.Field(i), path+"."+t.Field(i).Name, lim, seen); err != nil {
				return err
			}
		}
	case reflect.Map:
		iter := v.MapRange()
		for iter.Next() {
			if err := walkValue(iter.Value(), fmt.Sprintf("%s[%v]", path, iter.Key().Interface()), lim, seen); err != nil {
				return err
			}
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			if err := walkValue(v.Index(i), fmt.Sprintf("%s[%d]", path, i), lim, seen); err != nil {
				return err
			}
		}
	case reflect.String:
		if isPathy(path) {
			return ValidatePath(path, v.String(), lim)
		}
		return ValidateString(path, v.String(), lim)
	}
	return nil
}

// AttachRecursive installs flag and argument validation as a
// PersistentPreRunE on root and every subcommand, chaining any hook that is
// already set.
func AttachRecursive(root *cobra.Command, lim Limits) {
	attach(root, lim)
	for _, c := range root.Commands() {
		AttachRecursive(c, lim)
	}
}

func attach(cmd *cobra.Command, lim Limits) {
	prev := cmd.PersistentPreRunE
	cmd.PersistentPreRunE = func(c *cobra.Command, args []string) error {
		if err := validateFlagsAndArgs(c, args, lim); err != nil {
			return err
		}
		if prev != nil {
			return prev(c, args)
		}
		return nil
	}
}

func validateFlagsAndArgs(cmd *cobra.Command, args []string, lim Limits) error {
	for i, a := range args {
		if err := ValidateString(fmt.Sprintf("arg[%d]", i), a, lim); err != nil {
			return err
		}
	}

	var firstErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if firstErr != nil {
			return
		}
		check := ValidateString
		if isPathy(f.Name) || f.Name == "config" || f.Name == "root" {
			check = ValidatePath
		}
		name := "flag --" + f.Name

		var values []string
		switch f.Value.Type() {
		case "string":
			values = []string{f.Value.String()}
		case "stringSlice", "stringArray":
			if sv, ok := f.Value.(pflag.SliceValue); ok {
				values = sv.GetSlice()
			}
		default:
			return
		}

		for i, val := range values {
			label := name
			if len(values) > 1 || f.Value.Type() != "string" {
				label = fmt.Sprintf("%s[%d]", name, i)
			}
			if err := check(label, val, lim); err != nil {
				firstErr = err
				return
			}
		}
	})
	return firstErr
}
