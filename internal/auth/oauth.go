package auth

// Provider はバックエンドが仲介するOAuthプロバイダー。
type Provider string

const (
	ProviderGoogle Provider = "google"
	ProviderAzure  Provider = "azure"
)

// Navigator はブラウザを外部URLへ遷移させる副作用を表す。
// 遷移はリダイレクトで完結するため戻り値を持たない。
type Navigator interface {
	Navigate(url string)
}

// NavigatorFunc は関数をNavigatorとして扱うためのアダプタ。
type NavigatorFunc func(url string)

// Navigate はf(url)を呼び出す。
func (f NavigatorFunc) Navigate(url string) {
	f(url)
}

// LoginURL はバックエンドが構築するOAuthログインURLを返す。
// 認可コードの交換はバックエンド側で行われ、完了後に/auth/callbackへトークン付きで戻ってくる。
func LoginURL(apiBase string, p Provider) string {
	return apiBase + "/auth/" + string(p)
}
