// Package cookies reads and writes credential bundles: text files holding one
// browser cookie per line, either in the tab separated cookie-jar layout or as
// a bare name=value pair.
package cookies

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	ferrors "feedcrawler/pkg/errors"
	"feedcrawler/pkg/logger"
)

// EssentialNames are the cookies a logged-in session cannot do without
var EssentialNames = []string{"c_user", "xs"}

var pairPattern = regexp.MustCompile(`(\w+)=([^;]+)`)

// Record is one cookie from a bundle
type Record struct {
	Name   string
	Value  string
	Domain string
	Path   string
	Secure bool
	// Expiry is nil for session cookies
	Expiry *time.Time
}

// SkippedLine describes a bundle line that yielded no record
type SkippedLine struct {
	Line   int
	Reason string
}

// Bundle is the parsed content of a credential bundle
type Bundle struct {
	Records []Record
	Skipped []SkippedLine
}

// ParseBundle parses every line independently. Blank and '#' lines are
// ignored. Lines with at least seven tab separated fields are read as
// domain, flag, path, secure, expiry, name, value. Any other line
// contributes its first name=value pair, scoped to "."+primaryDomain and
// "/". Lines that fit neither form are logged and skipped.
func ParseBundle(r io.Reader, primaryDomain string, log logger.Logger) (*Bundle, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}

	bundle := &Bundle{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		rec, err := parseLine(line, primaryDomain)
		if err != nil {
			bundle.Skipped = append(bundle.Skipped, SkippedLine{Line: lineNo, Reason: err.Error()})
			log.WarnWithFields("Skipping malformed cookie line", map[string]interface{}{
				"line":   lineNo,
				"reason": err.Error(),
			})
			continue
		}
		bundle.Records = append(bundle.Records, rec)
	}
	if err := scanner.Err(); err != nil {
		return bundle, ferrors.Wrap(ferrors.ErrorTypeConfiguration, "failed to read cookie bundle", err)
	}

	return bundle, nil
}

func parseLine(line, primaryDomain string) (Record, error) {
	fields := strings.Split(line, "\t")
	if len(fields) >= 7 {
		return parseJarLine(fields)
	}

	m := pairPattern.FindStringSubmatch(line)
	if m == nil {
		return Record{}, fmt.Errorf("no name=value pair")
	}
	value := strings.TrimSpace(m[2])
	if value == "" {
		return Record{}, fmt.Errorf("empty value for %q", m[1])
	}
	return Record{
		Name:   m[1],
		Value:  value,
		Domain: "." + primaryDomain,
		Path:   "/",
	}, nil
}

func parseJarLine(fields []string) (Record, error) {
	name := strings.TrimSpace(fields[5])
	value := strings.TrimSpace(fields[6])
	if name == "" || value == "" {
		return Record{}, fmt.Errorf("empty cookie name or value")
	}

	rec := Record{
		Domain: strings.TrimSpace(fields[0]),
		Path:   strings.TrimSpace(fields[2]),
		Secure: parseBool(fields[3]),
		Name:   name,
		Value:  value,
	}
	if rec.Path == "" {
		rec.Path = "/"
	}

	rawExpiry := strings.TrimSpace(fields[4])
	if rawExpiry != "" && rawExpiry != "0" {
		secs, err := strconv.ParseFloat(rawExpiry, 64)
		if err != nil {
			return Record{}, fmt.Errorf("invalid expiry %q", rawExpiry)
		}
		if secs > 0 {
			exp := time.Unix(int64(secs), 0).UTC()
			rec.Expiry = &exp
		}
	}

	return rec, nil
}

func parseBool(s string) bool {
	s = strings.TrimSpace(s)
	return strings.EqualFold(s, "true") || s == "1"
}

// LoadBundle opens and parses the bundle at path. A missing, unreadable or
// record-less bundle is a configuration error.
func LoadBundle(path, primaryDomain string, log logger.Logger) (*Bundle, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.ErrorTypeConfiguration, fmt.Sprintf("cookie bundle %s not found", path), err)
	}
	if info.IsDir() {
		return nil, ferrors.Newf(ferrors.ErrorTypeConfiguration, "cookie bundle %s is a directory", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.ErrorTypeConfiguration, "failed to open cookie bundle", err)
	}
	defer f.Close()

	bundle, err := ParseBundle(f, primaryDomain, log)
	if err != nil {
		return nil, err
	}
	if len(bundle.Records) == 0 {
		return bundle, ferrors.Newf(ferrors.ErrorTypeConfiguration, "cookie bundle %s holds no usable cookies", path)
	}
	return bundle, nil
}

// WriteBundle writes records in the seven field layout read by ParseBundle
func WriteBundle(w io.Writer, records []Record) error {
	bw := bufio.NewWriter(w)
	for _, rec := range records {
		var expiry int64
		if rec.Expiry != nil {
			expiry = rec.Expiry.Unix()
		}
		path := rec.Path
		if path == "" {
			path = "/"
		}
		if _, err := fmt.Fprintf(bw, "%s\tTRUE\t%s\t%s\t%d\t%s\t%s\n",
			rec.Domain, path, strconv.FormatBool(rec.Secure), expiry, rec.Name, rec.Value); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// SaveBundle writes records to path with owner-only permissions
func SaveBundle(path string, records []Record) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to create cookie bundle: %w", err)
	}
	if err := WriteBundle(f, records); err != nil {
		f.Close()
		return fmt.Errorf("failed to write cookie bundle: %w", err)
	}
	return f.Close()
}

// MissingEssential returns the essential cookie names absent from records
func MissingEssential(records []Record) []string {
	have := make(map[string]bool, len(records))
	for _, rec := range records {
		have[rec.Name] = true
	}

	var missing []string
	for _, name := range EssentialNames {
		if !have[name] {
			missing = append(missing, name)
		}
	}
	return missing
}
