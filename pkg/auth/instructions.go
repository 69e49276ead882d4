package auth

import (
	"fmt"
	"io"
	"strings"

	"feedcrawler/pkg/cookies"
)

// ShowBundleExportGuide explains how to produce a cookie bundle by hand
func ShowBundleExportGuide(w io.Writer, bundlePath string) {
	line := strings.Repeat("=", 80)
	fmt.Fprintln(w, line)
	fmt.Fprintln(w, "COOKIE BUNDLE GUIDE")
	fmt.Fprintln(w, line)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "The crawler signs in by replaying your browser cookies from a bundle file:")
	fmt.Fprintf(w, "   %s\n", bundlePath)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "OPTION A: let the crawler capture it")
	fmt.Fprintln(w, "   feedcrawler session capture")
	fmt.Fprintln(w, "   A browser window opens. Log in, then press Enter in the terminal.")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "OPTION B: export from your own browser")
	fmt.Fprintln(w, "   1. Log in to the site in your browser")
	fmt.Fprintln(w, "   2. Export cookies with a 'cookies.txt' extension (Netscape format)")
	fmt.Fprintln(w, "   3. Save the file at the path above")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "ACCEPTED LINE FORMATS")
	fmt.Fprintln(w, "   Netscape jar (tab separated):")
	fmt.Fprintln(w, "     .facebook.com  TRUE  /  TRUE  1767225600  c_user  1000123")
	fmt.Fprintln(w, "   A bare name=value pair, one per line:")
	fmt.Fprintln(w, "     c_user=1000123")
	fmt.Fprintln(w, "   Lines starting with '#' and blank lines are ignored.")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "REQUIRED COOKIES")
	fmt.Fprintf(w, "   %s\n", strings.Join(cookies.EssentialNames, ", "))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "SECURITY WARNING")
	fmt.Fprintln(w, "   These cookies give full access to the account. Never share the file.")
	fmt.Fprintln(w, "   The crawler writes captured bundles with owner-only permissions.")
	fmt.Fprintln(w, line)
}

// ShowQuickBundleGuide prints a one-line reminder
func ShowQuickBundleGuide(w io.Writer) {
	fmt.Fprintln(w, "Run 'feedcrawler session capture' to log in and save a cookie bundle, or export cookies.txt from your browser.")
}
