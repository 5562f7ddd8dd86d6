package handlers

import (
	"net/http"
	"net/url"
)

const (
	flashCookieName     = "flash"
	flashTypeCookieName = "flash_type"
	flashTypeError      = "error"
	flashTypeInfo       = "info"
)

// flash is a one-shot message carried across a redirect in cookies.
type flash struct {
	Message string
	Type    string
}

func setFlash(w http.ResponseWriter, f flash, secure bool) {
	if f.Message == "" {
		return
	}
	if f.Type != flashTypeInfo {
		f.Type = flashTypeError
	}
	setCookie(w, flashCookieName, url.QueryEscape(f.Message), 0, secure)
	setCookie(w, flashTypeCookieName, f.Type, 0, secure)
}

// consumeFlash returns the pending flash, if any, and clears it.
func consumeFlash(w http.ResponseWriter, r *http.Request, secure bool) (flash, bool) {
	msgCookie, err := r.Cookie(flashCookieName)
	if err != nil || msgCookie.Value == "" {
		return flash{}, false
	}

	f := flash{Message: msgCookie.Value, Type: flashTypeError}
	if m, err := url.QueryUnescape(msgCookie.Value); err == nil {
		f.Message = m
	}
	if typeCookie, err := r.Cookie(flashTypeCookieName); err == nil && typeCookie.Value == flashTypeInfo {
		f.Type = flashTypeInfo
	}

	setCookie(w, flashCookieName, "", -1, secure)
	setCookie(w, flashTypeCookieName, "", -1, secure)
	return f, true
}

func setCookie(w http.ResponseWriter, name, value string, maxAge int, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
