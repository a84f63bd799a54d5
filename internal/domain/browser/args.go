package browser

import (
	"runtime"
	"strconv"
	"strings"
)

// Options describes how browsers are launched
type Options struct {
	// Path is the browser binary. Empty selects DefaultBinary.
	Path string
	// Address is the interface the debugging endpoint binds to
	Address string
	// Port is the debugging port used when a fork names none
	Port uint32
	// Headless is "true", "false" or "new"
	Headless string
	GPU      bool
	// GL selects the GL backend: "angle" or anything else for swiftshader
	GL string
	// Minimal launches with the reduced argument table
	Minimal bool
	// Brave selects Brave as the default binary
	Brave              bool
	RenderProcessLimit int
	// Extra is appended after the generated arguments
	Extra []string
}

// Binary returns the executable to spawn
func (o Options) Binary() string {
	if o.Path != "" {
		return o.Path
	}
	return DefaultBinary(runtime.GOOS, o.Brave)
}

// DefaultBinary returns the conventional browser location for an OS
func DefaultBinary(goos string, brave bool) string {
	switch goos {
	case "windows":
		if brave {
			return "brave-browser.exe"
		}
		return "chrome.exe"
	case "darwin":
		if brave {
			return "/Applications/Brave Browser.app/Contents/MacOS/Brave Browser"
		}
		return "/Applications/Google Chrome.app/Contents/MacOS/Google Chrome"
	case "linux":
		if brave {
			return "brave-browser"
		}
		return "chromium"
	default:
		if brave {
			return "brave"
		}
		return "chrome"
	}
}

// IsLightpanda reports whether path names a Lightpanda build
func IsLightpanda(path string) bool {
	return strings.HasSuffix(path, "lightpanda-aarch64-macos") ||
		strings.HasSuffix(path, "lightpanda-x86_64-linux")
}

// Positions of the address and port flags in a Chrome argument list
const (
	addressSlot = 0
	portSlot    = 1
)

// Args returns the launch arguments for a browser listening on port
func (o Options) Args(port uint32) []string {
	if IsLightpanda(o.Binary()) {
		return append(o.lightpandaArgs(port), o.Extra...)
	}

	var args []string
	if o.Minimal {
		args = o.minimalArgs()
	} else {
		args = o.performanceArgs()
	}

	args[addressSlot] = "--remote-debugging-address=" + o.address()
	args[portSlot] = "--remote-debugging-port=" + strconv.FormatUint(uint64(port), 10)

	return append(args, o.Extra...)
}

func (o Options) address() string {
	if o.Address == "" {
		return "0.0.0.0"
	}
	return o.Address
}

func (o Options) lightpandaArgs(port uint32) []string {
	return []string{"--port", strconv.FormatUint(uint64(port), 10), "--host", o.address()}
}

func (o Options) gpuArgs() []string {
	if o.GPU {
		return []string{"--enable-gpu", "--enable-gpu-sandbox"}
	}
	return []string{"--disable-gpu", "--disable-gpu-sandbox"}
}

// minimalArgs is the reduced table. It defaults to angle and drops the
// headless flag entirely when HEADLESS=false.
func (o Options) minimalArgs() []string {
	args := []string{"", ""}

	switch o.Headless {
	case "false":
	case "new":
		args = append(args, "--headless=new")
	default:
		args = append(args, "--headless")
	}

	args = append(args, o.gpuArgs()...)

	if o.GL == "" || o.GL == "angle" {
		args = append(args, "--use-gl=angle")
	} else {
		args = append(args, "--use-gl=swiftshader")
	}
	return args
}

func (o Options) performanceArgs() []string {
	args := []string{"", ""}

	switch o.Headless {
	case "false":
		args = append(args, "--test-type=gpu")
	case "new":
		args = append(args, "--headless=new")
	default:
		args = append(args, "--headless")
	}

	args = append(args, o.gpuArgs()...)

	if o.GL == "angle" {
		args = append(args, "--use-gl=angle")
	} else {
		args = append(args, "--use-gl=swiftshader")
	}

	args = append(args, performanceFlags...)

	if o.RenderProcessLimit > 0 {
		args = append(args, "--renderer-process-limit="+strconv.Itoa(o.RenderProcessLimit))
	}

	return append(args,
		"--enable-features="+strings.Join(enabledFeatures, ","),
		"--disable-features="+strings.Join(disabledFeatures, ","),
		"--enable-unsafe-swiftshader",
		"--use-angle=swiftshader",
	)
}

var performanceFlags = []string{
	"--no-zygote",
	"--user-data-dir=~/.config/google-chrome",
	"--ignore-certificate-errors",
	"--no-default-browser-check",
	"--no-first-run",
	"--no-sandbox",
	"--enable-webgl",
	"--enable-webgl2-compute-context",
	"--enable-webgl-draft-extensions",
	"--enable-unsafe-webgpu",
	"--enable-web-bluetooth",
	"--enable-dom-distiller",
	"--enable-distillability-service",
	"--enable-surface-synchronization",
	"--enable-logging=stderr",
	"--enable-async-dns",
	"--disable-setuid-sandbox",
	// containers crash on a small /dev/shm without it
	"--disable-dev-shm-usage",
	"--disable-threaded-scrolling",
	"--disable-cookie-encryption",
	"--disable-demo-mode",
	"--disable-dinosaur-easter-egg",
	"--disable-fetching-hints-at-navigation-start",
	"--disable-site-isolation-trials",
	"--disable-threaded-animation",
	"--disable-sync",
	"--disable-print-preview",
	"--disable-search-engine-choice-screen",
	"--disable-in-process-stack-traces",
	"--disable-low-res-tiling",
	"--disable-oobe-chromevox-hint-timer-for-testing",
	"--disable-smooth-scrolling",
	"--disable-prompt-on-repost",
	"--disable-domain-reliability",
	"--disable-gesture-typing",
	"--disable-background-timer-throttling",
	"--disable-breakpad",
	"--disable-crash-reporter",
	"--disable-asynchronous-spellchecking",
	"--disable-html5-camera",
	"--disable-hang-monitor",
	"--disable-checker-imaging",
	"--disable-image-animation-resync",
	"--disable-client-side-phishing-detection",
	"--disable-component-extensions-with-background-pages",
	"--disable-background-networking",
	"--disable-renderer-backgrounding",
	"--disable-field-trial-config",
	"--disable-back-forward-cache",
	"--disable-backgrounding-occluded-windows",
	"--disable-stack-profiler",
	"--disable-libassistant-logfile",
	"--disable-datasaver-prompt",
	"--disable-histogram-customizer",
	"--disable-vulkan-fallback-to-gl-for-testing",
	"--disable-vulkan-surface",
	"--disable-webrtc",
	"--disable-oopr-debug-crash-dump",
	"--disable-pnacl-crash-throttling",
	"--disable-renderer-accessibility",
	"--disable-pushstate-throttle",
	"--disable-blink-features=AutomationControlled",
	"--disable-ipc-flooding-protection",
	"--noerrdialogs",
	"--hide-scrollbars",
	"--allow-running-insecure-content",
	"--autoplay-policy=user-gesture-required",
	"--run-all-compositor-stages-before-draw",
	"--log-level=3",
	"--font-render-hinting=none",
	"--block-new-web-contents",
	"--no-subproc-heap-profiling",
	"--use-fake-device-for-media-stream",
	"--use-fake-ui-for-media-stream",
	"--no-pre-read-main-dll",
	"--ip-protection-proxy-opt-out",
	"--unsafely-disable-devtools-self-xss-warning",
	"--metrics-recording-only",
	"--use-mock-keychain",
	"--force-color-profile=srgb",
	"--disable-infobars",
	"--mute-audio",
	"--no-service-autorun",
	"--password-store=basic",
	"--export-tagged-pdf",
	"--no-pings",
	"--rusty-png",
	"--window-size=800,600",
}

var enabledFeatures = []string{
	"Vulkan",
	"PdfOopif",
	"SharedArrayBuffer",
	"NetworkService",
	"NetworkServiceInProcess",
}

var disabledFeatures = []string{
	"PaintHolding",
	"HttpsUpgrades",
	"DeferRendererTasksAfterInput",
	"LensOverlay",
	"ThirdPartyStoragePartitioning",
	"IsolateSandboxedIframes",
	"ProcessPerSiteUpToMainFrameThreshold",
	"site-per-process",
	"WebUIJSErrorReportingExtended",
	"DIPS",
	"InterestFeedContentSuggestions",
	"PrivacySandboxSettings4",
	"AutofillServerCommunication",
	"CalculateNativeWinOcclusion",
	"OptimizationHints",
	"AudioServiceOutOfProcess",
	"IsolateOrigins",
	"ImprovedCookieControls",
	"LazyFrameLoading",
	"GlobalMediaControls",
	"DestroyProfileOnBrowserClose",
	"MediaRouter",
	"DialMediaRouteProvider",
	"AcceptCHFrame",
	"AutoExpandDetailsElement",
	"CertificateTransparencyComponentUpdater",
	"AvoidUnnecessaryBeforeUnloadCheckSync",
	"Translate",
}
