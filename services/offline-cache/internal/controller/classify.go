package controller

import (
	"net/http"
	"net/url"
	"path"
	"strings"
)

// Class категория перехваченного запроса
type Class string

const (
	ClassPassthrough  Class = "passthrough"
	ClassBypass       Class = "bypass"
	ClassNavigation   Class = "navigation"
	ClassStatic       Class = "static"
	ClassAPI          Class = "api"
	ClassNetworkFirst Class = "network_first"
)

// Classify определяет стратегию для запроса. Порядок проверок важен:
// первым совпавшим правилом определяется класс.
func (c *Controller) Classify(req *http.Request) Class {
	if req.Method != http.MethodGet || !c.sameOrigin(req) {
		return ClassPassthrough
	}

	p := req.URL.Path
	if p == "" {
		p = "/"
	}

	for _, prefix := range c.opts.BypassPrefixes {
		if strings.HasPrefix(p, prefix) {
			return ClassBypass
		}
	}
	for _, part := range c.opts.BypassContains {
		if strings.Contains(p, part) {
			return ClassBypass
		}
	}

	if isNavigation(req) {
		return ClassNavigation
	}
	for _, prefix := range c.opts.NavigationPrefixes {
		if hasPathPrefix(p, prefix) {
			return ClassNavigation
		}
	}

	if c.isStatic(p) {
		return ClassStatic
	}

	if c.opts.APIPrefix != "" && strings.HasPrefix(p, c.opts.APIPrefix) {
		return ClassAPI
	}

	return ClassNetworkFirst
}

func (c *Controller) sameOrigin(req *http.Request) bool {
	return c.sameOriginURL(req.URL)
}

func (c *Controller) sameOriginURL(u *url.URL) bool {
	if u == nil || c.opts.Origin == nil {
		return false
	}
	return strings.EqualFold(u.Scheme, c.opts.Origin.Scheme) &&
		strings.EqualFold(u.Host, c.opts.Origin.Host)
}

// isNavigation полная загрузка страницы
func isNavigation(req *http.Request) bool {
	if mode := req.Header.Get("Sec-Fetch-Mode"); mode != "" {
		return mode == "navigate"
	}
	return strings.Contains(req.Header.Get("Accept"), "text/html")
}

func (c *Controller) isStatic(p string) bool {
	for _, asset := range c.opts.Precache {
		if p == asset {
			return true
		}
	}
	for _, prefix := range c.opts.StaticPrefixes {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	ext := strings.ToLower(path.Ext(p))
	if ext == "" {
		return false
	}
	for _, e := range c.opts.StaticExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// hasPathPrefix /user совпадает с /user и /user/..., но не с /username
func hasPathPrefix(p, prefix string) bool {
	if !strings.HasPrefix(p, prefix) {
		return false
	}
	return len(p) == len(prefix) || strings.HasSuffix(prefix, "/") || p[len(prefix)] == '/'
}
