// Package stealth compiles the document-start script that aligns a page's
// JavaScript runtime with a synthesised session identity and erases
// automation markers.
package stealth

import (
	"encoding/json"
	"fmt"

	"github.com/pageforge/pageforge/internal/fingerprint"
)

// scriptIdentity is the subset of SessionIdentity shipped into the page.
// Field names become JS property names.
type scriptIdentity struct {
	UserAgent           string              `json:"userAgent"`
	AppVersion          string              `json:"appVersion"`
	Platform            string              `json:"platform"`
	Languages           []string            `json:"languages"`
	Language            string              `json:"language"`
	HardwareConcurrency int                 `json:"hardwareConcurrency"`
	DeviceMemory        int                 `json:"deviceMemory"`
	IsChromium          bool                `json:"isChromium"`
	Brands              []fingerprint.Brand `json:"brands"`
	UaPlatform          string              `json:"uaPlatform"`
	UaPlatformVersion   string              `json:"uaPlatformVersion"`
	Screen              fingerprint.Screen  `json:"screen"`
	WebglVendor         string              `json:"webglVendor"`
	WebglRenderer       string              `json:"webglRenderer"`
}

// BuildScript compiles the stealth payload for one identity. The result is
// injected at document start; it is idempotent and swallows its own errors.
func BuildScript(id *fingerprint.SessionIdentity) (string, error) {
	si := scriptIdentity{
		UserAgent:           id.UserAgent,
		AppVersion:          appVersionFor(id),
		Platform:            id.Platform,
		Languages:           id.Languages,
		Language:            firstOr(id.Languages, "en-US"),
		HardwareConcurrency: id.HardwareConcurrency,
		DeviceMemory:        id.DeviceMemoryGb,
		IsChromium:          id.IsChromium(),
		Screen:              id.Screen,
		WebglVendor:         id.WebGL.Vendor,
		WebglRenderer:       id.WebGL.Renderer,
	}
	if id.ClientHints != nil {
		si.Brands = id.ClientHints.Brands
		si.UaPlatform = id.ClientHints.Platform
		si.UaPlatformVersion = id.ClientHints.PlatformVersion
	}

	blob, err := json.Marshal(si)
	if err != nil {
		return "", fmt.Errorf("marshal script identity: %w", err)
	}

	return fmt.Sprintf(alignmentScript, blob, id.NoiseSeed()), nil
}

func firstOr(list []string, fallback string) string {
	if len(list) > 0 {
		return list[0]
	}
	return fallback
}

// appVersionFor mirrors Chrome's navigator.appVersion, which is the UA
// minus the leading "Mozilla/".
func appVersionFor(id *fingerprint.SessionIdentity) string {
	const prefix = "Mozilla/"
	if len(id.UserAgent) > len(prefix) && id.UserAgent[:len(prefix)] == prefix {
		return id.UserAgent[len(prefix):]
	}
	return id.UserAgent
}

// alignmentScript is the parametrised payload. %s receives the identity
// JSON, %d the canvas noise seed. Every section is individually guarded so
// a hostile or partial environment can never make the script throw.
const alignmentScript = `
(() => {
    'use strict';

    const identity = %s;
    const noiseSeed = %d;

    const guardKey = Symbol.for('__pf_rt_align');
    if (window[guardKey]) {
        return;
    }
    Object.defineProperty(window, guardKey, {
        value: true, enumerable: false, configurable: false, writable: false
    });

    const nativeToString = Function.prototype.toString;
    const maskedFns = new WeakMap();
    const mask = (fn, name) => {
        maskedFns.set(fn, 'function ' + name + '() { [native code] }');
        return fn;
    };

    const define = (obj, prop, getter) => {
        try {
            Object.defineProperty(obj, prop, {
                get: mask(getter, 'get ' + prop),
                configurable: true
            });
        } catch (e) { /* property may be sealed */ }
    };

    // Function.prototype.toString must not reveal the overrides below.
    try {
        const patchedToString = mask(function toString() {
            if (maskedFns.has(this)) {
                return maskedFns.get(this);
            }
            return nativeToString.call(this);
        }, 'toString');
        Object.defineProperty(Function.prototype, 'toString', {
            value: patchedToString, writable: true, configurable: true
        });
    } catch (e) {}

    // Automation runtime markers.
    try {
        define(navigator, 'webdriver', () => undefined);
        const forbidden = [];
        for (const key of Object.getOwnPropertyNames(window)) {
            if (/^cdc_/.test(key) || /^__playwright/.test(key) ||
                /^__webdriver_/.test(key) || /^__selenium_/.test(key) ||
                /^__fxdriver_/.test(key) || /^__driver_/.test(key)) {
                forbidden.push(key);
            }
        }
        for (const key of forbidden) {
            try { delete window[key]; } catch (e) {}
            if (key in window) {
                define(window, key, () => undefined);
            }
        }
        for (const key of Object.getOwnPropertyNames(document)) {
            if (/^\$cdc_/.test(key) || /^\$wdc_/.test(key)) {
                try { delete document[key]; } catch (e) {}
            }
        }
    } catch (e) {}

    // Navigator alignment.
    try {
        define(navigator, 'userAgent', () => identity.userAgent);
        define(navigator, 'appVersion', () => identity.appVersion);
        define(navigator, 'platform', () => identity.platform);
        define(navigator, 'language', () => identity.language);
        define(navigator, 'languages', () => Object.freeze(identity.languages.slice()));
        define(navigator, 'hardwareConcurrency', () => identity.hardwareConcurrency);
        if (identity.isChromium) {
            define(navigator, 'deviceMemory', () => identity.deviceMemory);
        }
    } catch (e) {}

    // Client hints: present and aligned on Chromium, absent on Firefox.
    try {
        if (identity.isChromium) {
            const uaData = {
                brands: identity.brands.map(b => ({ brand: b.brand, version: b.version })),
                mobile: false,
                platform: identity.uaPlatform,
                getHighEntropyValues: mask(function getHighEntropyValues(hints) {
                    const values = {
                        brands: identity.brands.map(b => ({ brand: b.brand, version: b.version })),
                        mobile: false,
                        platform: identity.uaPlatform,
                        platformVersion: identity.uaPlatformVersion,
                        architecture: 'x86',
                        bitness: '64',
                        model: ''
                    };
                    const out = {};
                    for (const h of (hints || [])) {
                        if (h in values) { out[h] = values[h]; }
                    }
                    out.brands = values.brands;
                    out.mobile = values.mobile;
                    out.platform = values.platform;
                    return Promise.resolve(out);
                }, 'getHighEntropyValues'),
                toJSON: mask(function toJSON() {
                    return { brands: identity.brands, mobile: false, platform: identity.uaPlatform };
                }, 'toJSON')
            };
            define(navigator, 'userAgentData', () => uaData);
        } else {
            define(navigator, 'userAgentData', () => undefined);
        }
    } catch (e) {}

    // Screen alignment.
    try {
        define(screen, 'width', () => identity.screen.width);
        define(screen, 'height', () => identity.screen.height);
        define(screen, 'availWidth', () => identity.screen.availWidth);
        define(screen, 'availHeight', () => identity.screen.availHeight);
        define(screen, 'colorDepth', () => identity.screen.colorDepth);
        define(screen, 'pixelDepth', () => identity.screen.colorDepth);
    } catch (e) {}

    // Plugins and mime types: the standard PDF viewer set.
    try {
        const pluginNames = [
            'PDF Viewer', 'Chrome PDF Viewer', 'Chromium PDF Viewer',
            'Microsoft Edge PDF Viewer', 'WebKit built-in PDF'
        ];
        const mimeInfo = [
            { type: 'application/pdf', suffixes: 'pdf', description: 'Portable Document Format' },
            { type: 'text/pdf', suffixes: 'pdf', description: 'Portable Document Format' }
        ];
        const makePlugin = (name) => {
            const p = {
                name: name,
                filename: 'internal-pdf-viewer',
                description: 'Portable Document Format',
                length: mimeInfo.length,
                item: mask(function item(i) { return mimeInfo[i] || null; }, 'item'),
                namedItem: mask(function namedItem(t) {
                    return mimeInfo.find(m => m.type === t) || null;
                }, 'namedItem')
            };
            return p;
        };
        const plugins = pluginNames.map(makePlugin);
        plugins.item = mask(function item(i) { return plugins[i] || null; }, 'item');
        plugins.namedItem = mask(function namedItem(n) {
            return plugins.find(p => p.name === n) || null;
        }, 'namedItem');
        plugins.refresh = mask(function refresh() {}, 'refresh');
        define(navigator, 'plugins', () => plugins);

        const mimes = mimeInfo.slice();
        mimes.item = mask(function item(i) { return mimes[i] || null; }, 'item');
        mimes.namedItem = mask(function namedItem(t) {
            return mimes.find(m => m.type === t) || null;
        }, 'namedItem');
        define(navigator, 'mimeTypes', () => mimes);
    } catch (e) {}

    // Permissions: notifications must resolve, not reject.
    try {
        if (navigator.permissions && navigator.permissions.query) {
            const nativeQuery = navigator.permissions.query.bind(navigator.permissions);
            navigator.permissions.query = mask(function query(desc) {
                if (desc && desc.name === 'notifications') {
                    return Promise.resolve({ state: 'default', onchange: null });
                }
                return nativeQuery(desc).catch(() => ({ state: 'prompt', onchange: null }));
            }, 'query');
        }
    } catch (e) {}

    // WebGL identification.
    try {
        const UNMASKED_VENDOR_WEBGL = 37445;
        const UNMASKED_RENDERER_WEBGL = 37446;
        const extensions = [
            'ANGLE_instanced_arrays', 'EXT_blend_minmax', 'EXT_color_buffer_half_float',
            'EXT_float_blend', 'EXT_frag_depth', 'EXT_shader_texture_lod',
            'EXT_texture_compression_bptc', 'EXT_texture_compression_rgtc',
            'EXT_texture_filter_anisotropic', 'EXT_sRGB', 'KHR_parallel_shader_compile',
            'OES_element_index_uint', 'OES_fbo_render_mipmap', 'OES_standard_derivatives',
            'OES_texture_float', 'OES_texture_float_linear', 'OES_texture_half_float',
            'OES_texture_half_float_linear', 'OES_vertex_array_object',
            'WEBGL_color_buffer_float', 'WEBGL_compressed_texture_s3tc',
            'WEBGL_compressed_texture_s3tc_srgb', 'WEBGL_debug_renderer_info',
            'WEBGL_debug_shaders', 'WEBGL_depth_texture', 'WEBGL_draw_buffers',
            'WEBGL_lose_context', 'WEBGL_multi_draw'
        ];
        const patchGl = (proto) => {
            if (!proto) { return; }
            const nativeGetParameter = proto.getParameter;
            proto.getParameter = mask(function getParameter(p) {
                if (p === UNMASKED_VENDOR_WEBGL) { return identity.webglVendor; }
                if (p === UNMASKED_RENDERER_WEBGL) { return identity.webglRenderer; }
                return nativeGetParameter.call(this, p);
            }, 'getParameter');
            proto.getSupportedExtensions = mask(function getSupportedExtensions() {
                return extensions.slice();
            }, 'getSupportedExtensions');
        };
        patchGl(window.WebGLRenderingContext && WebGLRenderingContext.prototype);
        patchGl(window.WebGL2RenderingContext && WebGL2RenderingContext.prototype);
    } catch (e) {}

    // Canvas noise: deterministic within the session via the seeded PRNG,
    // bounded to one unit per channel.
    try {
        const mulberry32 = (seed) => {
            let a = seed >>> 0;
            return () => {
                a |= 0; a = (a + 0x6D2B79F5) | 0;
                let t = Math.imul(a ^ (a >>> 15), 1 | a);
                t = (t + Math.imul(t ^ (t >>> 7), 61 | t)) ^ t;
                return ((t ^ (t >>> 14)) >>> 0) / 4294967296;
            };
        };
        const perturb = (data) => {
            const rnd = mulberry32(noiseSeed);
            for (let i = 0; i < data.length; i += 4) {
                const r = rnd();
                if (r < 0.33) { continue; }
                const delta = r < 0.66 ? 1 : -1;
                const ch = i + ((r * 100) | 0) %% 3;
                data[ch] = Math.max(0, Math.min(255, data[ch] + delta));
            }
        };
        const nativeGetImageData = CanvasRenderingContext2D.prototype.getImageData;
        CanvasRenderingContext2D.prototype.getImageData = mask(function getImageData(x, y, w, h, opts) {
            const image = nativeGetImageData.call(this, x, y, w, h, opts);
            perturb(image.data);
            return image;
        }, 'getImageData');

        const nativeToDataURL = HTMLCanvasElement.prototype.toDataURL;
        HTMLCanvasElement.prototype.toDataURL = mask(function toDataURL() {
            try {
                if (this.width > 0 && this.height > 0 && this.getContext('2d')) {
                    // Encode from a perturbed offscreen copy. The live canvas
                    // stays untouched, so repeated readbacks are identical and
                    // noise never stacks beyond one unit per channel.
                    const copy = document.createElement('canvas');
                    copy.width = this.width;
                    copy.height = this.height;
                    const copyCtx = copy.getContext('2d');
                    copyCtx.drawImage(this, 0, 0);
                    const image = nativeGetImageData.call(copyCtx, 0, 0, copy.width, copy.height);
                    perturb(image.data);
                    copyCtx.putImageData(image, 0, 0);
                    return nativeToDataURL.apply(copy, arguments);
                }
            } catch (e) {}
            return nativeToDataURL.apply(this, arguments);
        }, 'toDataURL');
    } catch (e) {}

    // WebRTC leaks local addresses; the constructors read back undefined.
    try {
        for (const name of ['RTCPeerConnection', 'webkitRTCPeerConnection', 'mozRTCPeerConnection']) {
            define(window, name, () => undefined);
        }
    } catch (e) {}
})();
`
