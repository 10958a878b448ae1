// Package doctor provides environment and asset preflight checks for
// kokorotts.
package doctor

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/example/go-kokoro-tts/internal/native"
	"github.com/example/go-kokoro-tts/internal/phonemize"
	"github.com/example/go-kokoro-tts/internal/voice"
)

// PassMark and FailMark are the prefix symbols printed for each check result.
const (
	PassMark = "✓"
	FailMark = "✗"
)

// Minimum Go runtime the binary is supported on.
const (
	minGoMajor = 1
	minGoMinor = 24
)

// VersionFunc returns a version string or an error if the component is unavailable.
type VersionFunc func() (string, error)

// Config holds injectable dependencies for each doctor check.
type Config struct {
	// GoVersion returns the runtime version, e.g. "go1.25.1". Nil skips the check.
	GoVersion VersionFunc
	// ModelPath is loaded in full so missing or misshapen weights fail here.
	ModelPath string
	// VoicesPath is an .npz/.bin archive, a safetensors file or a directory
	// of .npy files.
	VoicesPath string
	// LexiconPath is optional; the built-in lexicon is checked when empty.
	LexiconPath string
	// CacheDir, when set, must be writable.
	CacheDir string
}

// Result collects the outcome of all checks.
type Result struct {
	failures []string
}

// Failed returns true if any check failed.
func (r *Result) Failed() bool { return len(r.failures) > 0 }

// Failures returns the list of failure messages.
func (r *Result) Failures() []string { return append([]string(nil), r.failures...) }

// AddFailure appends an external failure message to the result.
func (r *Result) AddFailure(msg string) { r.failures = append(r.failures, msg) }

func (r *Result) fail(w io.Writer, label string, err error) {
	r.failures = append(r.failures, fmt.Sprintf("%s: %v", label, err))
	fmt.Fprintf(w, "%s %s: %v\n", FailMark, label, err)
}

// Run executes all configured checks and writes human-readable output to w.
// Each check line is prefixed with PassMark or FailMark.
func Run(cfg Config, w io.Writer) Result {
	var res Result

	// ---- Go runtime -------------------------------------------------------
	if cfg.GoVersion != nil {
		ver, err := cfg.GoVersion()
		if err == nil {
			err = checkGoVersion(ver)
		}

		if err != nil {
			res.fail(w, "go runtime", err)
		} else {
			fmt.Fprintf(w, "%s go runtime: %s\n", PassMark, ver)
		}
	}

	// ---- model ------------------------------------------------------------
	if info, err := checkModel(cfg.ModelPath); err != nil {
		res.fail(w, "model "+cfg.ModelPath, err)
	} else {
		fmt.Fprintf(w, "%s model: %s (%s)\n", PassMark, cfg.ModelPath, info)
	}

	// ---- voices -----------------------------------------------------------
	if store, err := voice.Load(cfg.VoicesPath, voice.LoadOptions{}); err != nil {
		res.fail(w, "voices "+cfg.VoicesPath, err)
	} else {
		fmt.Fprintf(w, "%s voices: %s (%d voices)\n", PassMark, cfg.VoicesPath, store.Len())
	}

	// ---- lexicon ----------------------------------------------------------
	if cfg.LexiconPath == "" {
		if lex, err := phonemize.DefaultLexicon(); err != nil {
			res.fail(w, "lexicon (built-in)", err)
		} else {
			fmt.Fprintf(w, "%s lexicon: built-in (%s entries)\n", PassMark, humanize.Comma(int64(lex.Len())))
		}
	} else if lex, err := phonemize.LoadLexicon(cfg.LexiconPath); err != nil {
		res.fail(w, "lexicon "+cfg.LexiconPath, err)
	} else {
		fmt.Fprintf(w, "%s lexicon: %s (%s entries)\n", PassMark, cfg.LexiconPath, humanize.Comma(int64(lex.Len())))
	}

	// ---- cache directory --------------------------------------------------
	if cfg.CacheDir != "" {
		if err := checkWritable(cfg.CacheDir); err != nil {
			res.fail(w, "cache dir "+cfg.CacheDir, err)
		} else {
			fmt.Fprintf(w, "%s cache dir: %s\n", PassMark, cfg.CacheDir)
		}
	}

	return res
}

func checkModel(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("no model path configured")
	}

	st, err := os.Stat(path)
	if err != nil {
		return "", err
	}

	m, err := native.LoadModel(path)
	if err != nil {
		return "", err
	}
	defer m.Close()

	return fmt.Sprintf("%s, max %d tokens", humanize.Bytes(uint64(st.Size())), m.Config().MaxTokens), nil
}

func checkWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	f, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return err
	}

	name := f.Name()
	_ = f.Close()

	return os.Remove(name)
}

// checkGoVersion returns an error if ver is older than the supported
// minimum. ver is a runtime.Version string like "go1.25.1".
func checkGoVersion(ver string) error {
	major, minor, err := parseMajorMinor(strings.TrimPrefix(ver, "go"))
	if err != nil {
		return fmt.Errorf("cannot parse %q: %w", ver, err)
	}
	if major != minGoMajor {
		return fmt.Errorf("requires Go %d, got %d", minGoMajor, major)
	}
	if minor < minGoMinor {
		return fmt.Errorf("requires Go >=%d.%d, got %d.%d", minGoMajor, minGoMinor, major, minor)
	}
	return nil
}

func parseMajorMinor(ver string) (major, minor int, err error) {
	parts := strings.SplitN(ver, ".", 3)
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("unexpected version format %q", ver)
	}
	major, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("bad major in %q: %w", ver, err)
	}
	// Development builds carry suffixes such as "1.26rc1".
	minorStr := parts[1]
	if i := strings.IndexFunc(minorStr, func(r rune) bool { return r < '0' || r > '9' }); i >= 0 {
		minorStr = parts[1][:i]
	}
	minor, err = strconv.Atoi(minorStr)
	if err != nil {
		return 0, 0, fmt.Errorf("bad minor in %q: %w", ver, err)
	}
	return major, minor, nil
}
