// Package security はWebhook送信先の安全性検証と、外部応答のテキスト化を提供する。
package security

import (
	"fmt"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// webhookSchemes はWebhook送信先として許可するスキーム。
var webhookSchemes = []string{"https"}

// blockedPrefixes は送信先としてブロックするネットワーク範囲。
// safeurlは接続時にDNS解決後のIPアドレスも検証するため、ここでの判定は設定読み込み時の事前チェック用。
var blockedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("127.0.0.0/8"),
	// クラウドメタデータIP (169.254.169.254) を含む
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("fe80::/10"),
	netip.MustParsePrefix("fc00::/7"),
}

// SSRFGuard はWebhook送信先URLの検証と、内部ネットワークへ接続しないHTTPクライアントの生成を行う。
// 送信先URLは設定値だが、漏洩した設定やテンプレートの誤りで内部サービスへPOSTしないようにする。
type SSRFGuard struct{}

// NewSSRFGuard はSSRFGuardを生成する。
func NewSSRFGuard() *SSRFGuard {
	return &SSRFGuard{}
}

// NewSafeClient はsafeurlでラップしたHTTPクライアントを生成する。
// httpsの443番ポートのみ許可し、プライベート・ループバック・リンクローカルのIPへの接続を拒否する。
func (g *SSRFGuard) NewSafeClient(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(webhookSchemes...).
		SetAllowedPorts(443).
		Build()

	return safeurl.Client(config).Client
}

// ValidateURL はWebhook URLを静的に検証する（DNS解決は行わない）。
func (g *SSRFGuard) ValidateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("empty URL")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if !isAllowedScheme(scheme) {
		return fmt.Errorf("disallowed scheme: %q (allowed: %v)", scheme, webhookSchemes)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("empty host in URL: %s", rawURL)
	}

	if port := parsed.Port(); port != "" && port != "443" {
		return fmt.Errorf("disallowed port: %s", port)
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		if isBlockedAddr(addr) {
			return fmt.Errorf("blocked IP address: %s", addr)
		}
		return nil
	}

	if isBlockedHostname(host) {
		return fmt.Errorf("blocked host: %s", host)
	}

	return nil
}

func isAllowedScheme(scheme string) bool {
	for _, allowed := range webhookSchemes {
		if scheme == allowed {
			return true
		}
	}
	return false
}

// isBlockedAddr はIPv4射影アドレスも正規化してから判定する。
func isBlockedAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, prefix := range blockedPrefixes {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// isBlockedHostname はlocalhostと.localhost/.internalのサブドメインを拒否する。
func isBlockedHostname(host string) bool {
	lower := strings.TrimSuffix(strings.ToLower(host), ".")
	return lower == "localhost" ||
		strings.HasSuffix(lower, ".localhost") ||
		strings.HasSuffix(lower, ".internal")
}
