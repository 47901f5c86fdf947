package updater

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/Masterminds/semver/v3"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/bundle-updater/internal/config"
	"github.com/oshokin/bundle-updater/internal/errs"
	"github.com/oshokin/bundle-updater/internal/manifest"
	"github.com/oshokin/bundle-updater/internal/platform"
)

// signingKit is a deterministic minisign keypair for endpoint tests.
type signingKit struct {
	private ed25519.PrivateKey
	keyID   [8]byte
	pubkey  string
}

func newSigningKit(t *testing.T, seedByte byte) *signingKit {
	t.Helper()

	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = seedByte
	}

	private := ed25519.NewKeyFromSeed(seed)
	public := private.Public().(ed25519.PublicKey)

	kit := &signingKit{private: private}
	copy(kit.keyID[:], []byte{seedByte, 11, 12, 13, 14, 15, 16, 17})

	blob := append([]byte("Ed"), kit.keyID[:]...)
	blob = append(blob, public...)
	keyFile := fmt.Sprintf("untrusted comment: minisign public key\n%s\n",
		base64.StdEncoding.EncodeToString(blob))
	kit.pubkey = base64.StdEncoding.EncodeToString([]byte(keyFile))

	return kit
}

func (k *signingKit) sign(data []byte) string {
	raw := ed25519.Sign(k.private, data)
	blob := append([]byte("Ed"), k.keyID[:]...)
	blob = append(blob, raw...)

	global := ed25519.Sign(k.private, raw)

	sigFile := fmt.Sprintf("untrusted comment: signature from test key\n%s\n%s\n",
		base64.StdEncoding.EncodeToString(blob),
		base64.StdEncoding.EncodeToString(global))

	return base64.StdEncoding.EncodeToString([]byte(sigFile))
}

// appImageArtifact wraps content as the gzip-tar the AppImage
// strategy expects.
func appImageArtifact(t *testing.T, content []byte) []byte {
	t.Helper()

	var buf bytes.Buffer

	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	require.NoError(t, tw.WriteHeader(&tar.Header{
		Name:     "demo_2.0.0_amd64.AppImage",
		Typeflag: tar.TypeReg,
		Mode:     0o755,
		Size:     int64(len(content)),
	}))

	_, err := tw.Write(content)
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())

	return buf.Bytes()
}

func linuxPlatform(executablePath string) *platform.Platform {
	return &platform.Platform{
		OS:             platform.OSLinux,
		Arch:           platform.ArchX8664,
		ExecutablePath: executablePath,
	}
}

func testUpdater(t *testing.T, cfg *config.Config, current string, p *platform.Platform) *Updater {
	t.Helper()

	require.NoError(t, config.Validate(cfg))

	return newUpdater(cfg, semver.MustParse(current), p)
}

// TestExpandEndpoint covers token substitution and URL validation.
func TestExpandEndpoint(t *testing.T) {
	t.Parallel()

	expanded, err := expandEndpoint(
		"https://releases.example.com/{{target}}/{{arch}}/{{current_version}}",
		"1.0.0", "linux", "x86_64")
	require.NoError(t, err)
	require.Equal(t, "https://releases.example.com/linux/x86_64/1.0.0", expanded)
	require.NotContains(t, expanded, "{{")

	// Tokens in query strings expand too.
	expanded, err = expandEndpoint(
		"https://releases.example.com/check?v={{current_version}}&os={{target}}",
		"1.0.0", "macos", "aarch64")
	require.NoError(t, err)
	require.Equal(t, "https://releases.example.com/check?v=1.0.0&os=macos", expanded)

	// Relative results are rejected.
	_, err = expandEndpoint("/updates/{{target}}", "1.0.0", "linux", "x86_64")
	require.Error(t, err)
	require.Equal(t, errs.KindConfig, errs.KindOf(err))
}

// TestCheckNoContent is the idempotent no-op scenario: a 204 yields
// no update, no disk writes, no spawn.
func TestCheckNoContent(t *testing.T) {
	t.Parallel()

	kit := newSigningKit(t, 21)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	u := testUpdater(t, &config.Config{
		Endpoints: []string{server.URL},
		Pubkey:    kit.pubkey,
	}, "1.0.0", linuxPlatform("/tmp/demo.AppImage"))

	update, err := u.Check(context.Background())
	require.NoError(t, err)
	require.Nil(t, update)
	require.Equal(t, StateNoUpdate, u.State())
	require.True(t, u.State().Terminal())
}

// TestCheckEqualVersion ensures an equal release version yields no
// update even with a syntactically valid manifest.
func TestCheckEqualVersion(t *testing.T) {
	t.Parallel()

	kit := newSigningKit(t, 22)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"version":   "1.0.0",
			"url":       "https://releases.example.com/a",
			"signature": kit.sign([]byte("x")),
			"format":    "appimage",
		})
	}))
	defer server.Close()

	u := testUpdater(t, &config.Config{
		Endpoints: []string{server.URL},
		Pubkey:    kit.pubkey,
	}, "1.0.0", linuxPlatform("/tmp/demo.AppImage"))

	update, err := u.Check(context.Background())
	require.NoError(t, err)
	require.Nil(t, update)
}

// TestCheckWrongPlatform ensures a per-platform manifest without our
// key declines cleanly.
func TestCheckWrongPlatform(t *testing.T) {
	t.Parallel()

	kit := newSigningKit(t, 23)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"version": "2.0.0",
			"platforms": map[string]any{
				"linux-x86_64": map[string]any{
					"url":       "https://releases.example.com/a",
					"signature": kit.sign([]byte("x")),
					"format":    "appimage",
				},
			},
		})
	}))
	defer server.Close()

	windows := &platform.Platform{
		OS:             platform.OSWindows,
		Arch:           platform.ArchX8664,
		ExecutablePath: `C:\Apps\demo.exe`,
	}

	u := testUpdater(t, &config.Config{
		Endpoints: []string{server.URL},
		Pubkey:    kit.pubkey,
	}, "1.0.0", windows)

	update, err := u.Check(context.Background())
	require.NoError(t, err)
	require.Nil(t, update)
	require.Equal(t, StateNoUpdate, u.State())
}

// TestCheckDownloadInstall is the full happy path: flat manifest,
// templated endpoint, signed AppImage artifact, progress accounting
// and atomic replacement.
func TestCheckDownloadInstall(t *testing.T) {
	t.Parallel()

	kit := newSigningKit(t, 24)

	appImage := filepath.Join(t.TempDir(), "demo.AppImage")
	require.NoError(t, os.WriteFile(appImage, []byte("old appimage"), 0o755))

	artifact := appImageArtifact(t, []byte("new appimage"))

	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/manifests/linux/x86_64/1.0.0", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"version":   "v1.2.3",
			"notes":     "fixes",
			"pub_date":  "2026-01-15T10:00:00Z",
			"url":       server.URL + "/artifacts/demo.AppImage.tar.gz",
			"signature": kit.sign(artifact),
			"format":    "appimage",
		})
	})
	mux.HandleFunc("/artifacts/demo.AppImage.tar.gz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(artifact)
	})

	u := testUpdater(t, &config.Config{
		Endpoints: []string{server.URL + "/manifests/{{target}}/{{arch}}/{{current_version}}"},
		Pubkey:    kit.pubkey,
	}, "1.0.0", linuxPlatform(appImage))

	update, err := u.Check(context.Background())
	require.NoError(t, err)
	require.NotNil(t, update)
	require.Equal(t, "1.2.3", update.Version().String())
	require.Equal(t, manifest.FormatAppImage, update.Format())
	require.Equal(t, "fixes", update.Notes())
	require.Equal(t, StateReady, u.State())

	var received int64

	verified, err := update.Download(context.Background(), func(chunkLen int, contentLength int64) {
		received += int64(chunkLen)
		require.Equal(t, int64(len(artifact)), contentLength)
	})
	require.NoError(t, err)
	require.Equal(t, artifact, verified)
	require.Equal(t, int64(len(artifact)), received)
	require.Equal(t, StateVerified, u.State())

	require.NoError(t, update.Install(context.Background(), verified, false))
	require.Equal(t, StateInstalled, u.State())

	installed, err := os.ReadFile(appImage)
	require.NoError(t, err)
	require.Equal(t, []byte("new appimage"), installed)
}

// TestDownloadKeyMismatch ensures a signature from a foreign key is
// rejected before the artifact is requested and the installation
// stays untouched.
func TestDownloadKeyMismatch(t *testing.T) {
	t.Parallel()

	kit := newSigningKit(t, 25)
	foreign := newSigningKit(t, 26)

	appImage := filepath.Join(t.TempDir(), "demo.AppImage")
	require.NoError(t, os.WriteFile(appImage, []byte("old appimage"), 0o755))

	artifact := appImageArtifact(t, []byte("new appimage"))

	var artifactRequests int

	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/manifest", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"version":   "2.0.0",
			"url":       server.URL + "/artifact",
			"signature": foreign.sign(artifact),
			"format":    "appimage",
		})
	})
	mux.HandleFunc("/artifact", func(w http.ResponseWriter, _ *http.Request) {
		artifactRequests++

		_, _ = w.Write(artifact)
	})

	u := testUpdater(t, &config.Config{
		Endpoints: []string{server.URL + "/manifest"},
		Pubkey:    kit.pubkey,
	}, "1.0.0", linuxPlatform(appImage))

	update, err := u.Check(context.Background())
	require.NoError(t, err)
	require.NotNil(t, update)

	_, err = update.Download(context.Background(), nil)
	require.Error(t, err)
	require.Equal(t, errs.KindKeyMismatch, errs.KindOf(err))
	require.Zero(t, artifactRequests, "a key mismatch must not cost a download")
	require.Equal(t, StateFailed, u.State())
	require.Equal(t, errs.KindKeyMismatch, u.FailureKind())

	content, err := os.ReadFile(appImage)
	require.NoError(t, err)
	require.Equal(t, []byte("old appimage"), content)
}

// TestDownloadTamperedArtifact ensures verification rejects bytes the
// signature does not cover.
func TestDownloadTamperedArtifact(t *testing.T) {
	t.Parallel()

	kit := newSigningKit(t, 27)

	artifact := appImageArtifact(t, []byte("new appimage"))

	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/manifest", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"version":   "2.0.0",
			"url":       server.URL + "/artifact",
			"signature": kit.sign(artifact),
			"format":    "appimage",
		})
	})
	mux.HandleFunc("/artifact", func(w http.ResponseWriter, _ *http.Request) {
		tampered := append([]byte{}, artifact...)
		tampered[0] ^= 0xff

		_, _ = w.Write(tampered)
	})

	u := testUpdater(t, &config.Config{
		Endpoints: []string{server.URL + "/manifest"},
		Pubkey:    kit.pubkey,
	}, "1.0.0", linuxPlatform("/tmp/demo.AppImage"))

	update, err := u.Check(context.Background())
	require.NoError(t, err)
	require.NotNil(t, update)

	_, err = update.Download(context.Background(), nil)
	require.Error(t, err)
	require.Equal(t, errs.KindSignatureInvalid, errs.KindOf(err))
}

// TestCheckAbortsOnServerError ensures a hard endpoint failure
// surfaces with its status by default.
func TestCheckAbortsOnServerError(t *testing.T) {
	t.Parallel()

	kit := newSigningKit(t, 28)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	u := testUpdater(t, &config.Config{
		Endpoints: []string{server.URL},
		Pubkey:    kit.pubkey,
	}, "1.0.0", linuxPlatform("/tmp/demo.AppImage"))

	_, err := u.Check(context.Background())
	require.Error(t, err)
	require.Equal(t, errs.KindNetwork, errs.KindOf(err))
	require.Equal(t, http.StatusInternalServerError, errs.StatusOf(err))
	require.Equal(t, StateFailed, u.State())
	require.Equal(t, errs.KindNetwork, u.FailureKind())
}

// TestCheckEndpointFallback ensures a failing endpoint is skipped
// when fallback is configured and a later one still wins.
func TestCheckEndpointFallback(t *testing.T) {
	t.Parallel()

	kit := newSigningKit(t, 29)

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer broken.Close()

	working := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"version":   "3.0.0",
			"url":       "https://releases.example.com/a",
			"signature": kit.sign([]byte("x")),
			"format":    "appimage",
		})
	}))
	defer working.Close()

	u := testUpdater(t, &config.Config{
		Endpoints:        []string{broken.URL, working.URL},
		EndpointFallback: true,
		Pubkey:           kit.pubkey,
	}, "1.0.0", linuxPlatform("/tmp/demo.AppImage"))

	update, err := u.Check(context.Background())
	require.NoError(t, err)
	require.NotNil(t, update)
	require.Equal(t, "3.0.0", update.Version().String())
}

// TestCheckRecordsInvalidTemplate ensures an endpoint that does not
// expand to a URL is skipped, and surfaced when nothing else wins.
func TestCheckRecordsInvalidTemplate(t *testing.T) {
	t.Parallel()

	kit := newSigningKit(t, 30)

	declining := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer declining.Close()

	u := testUpdater(t, &config.Config{
		Endpoints: []string{"not-a-url-{{target}}", declining.URL},
		Pubkey:    kit.pubkey,
	}, "1.0.0", linuxPlatform("/tmp/demo.AppImage"))

	_, err := u.Check(context.Background())
	require.Error(t, err)
	require.Equal(t, errs.KindConfig, errs.KindOf(err))
}

// TestSetVersionComparator lets callers veto releases the default
// gate would accept.
func TestSetVersionComparator(t *testing.T) {
	t.Parallel()

	kit := newSigningKit(t, 31)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"version":   "2.0.0-rc.1",
			"url":       "https://releases.example.com/a",
			"signature": kit.sign([]byte("x")),
			"format":    "appimage",
		})
	}))
	defer server.Close()

	u := testUpdater(t, &config.Config{
		Endpoints: []string{server.URL},
		Pubkey:    kit.pubkey,
	}, "1.0.0", linuxPlatform("/tmp/demo.AppImage"))

	u.SetVersionComparator(func(_ *semver.Version, release *manifest.Release) bool {
		return release.Version.Prerelease() == ""
	})

	update, err := u.Check(context.Background())
	require.NoError(t, err)
	require.Nil(t, update, "prereleases are vetoed by the comparator")
}

// TestNewValidation covers the fail-fast construction paths.
func TestNewValidation(t *testing.T) {
	t.Parallel()

	kit := newSigningKit(t, 32)

	// Empty endpoints.
	_, err := New("1.0.0", &config.Config{Pubkey: kit.pubkey})
	require.Error(t, err)
	require.Equal(t, errs.KindConfig, errs.KindOf(err))

	// Unparseable current version.
	_, err = New("one.two", &config.Config{
		Endpoints: []string{"https://releases.example.com"},
		Pubkey:    kit.pubkey,
	})
	require.Error(t, err)
	require.Equal(t, errs.KindVersion, errs.KindOf(err))

	// Undecodable public key: valid base64, not a key.
	_, err = New("1.0.0", &config.Config{
		Endpoints: []string{"https://releases.example.com"},
		Pubkey:    base64.StdEncoding.EncodeToString([]byte("junk")),
	})
	require.Error(t, err)
	require.Equal(t, errs.KindConfig, errs.KindOf(err))
}
