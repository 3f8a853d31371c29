// Storepulse - Real-Time Storefront Presence Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storepulse

package api

import (
	"bytes"
	"net/http"
	"strings"
	"text/template"
	"time"

	"github.com/tomtom215/storepulse/internal/logging"
)

// Emitter timing.
const (
	scriptHeartbeat       = 10 * time.Second
	scriptJitter          = 2 * time.Second
	scriptActivityTimeout = 30 * time.Second
	scriptDebounce        = time.Second
)

// scriptTemplate renders the storefront emitter. Values reach JavaScript
// string literals only through the js escaper.
var scriptTemplate = template.Must(template.New("presence.js").Parse(`(function () {
  'use strict';
  if (window.StorepulsePresence) { return; }

  var BASE = "{{js .BaseURL}}";
  var SHOP = "{{js .Shop}}";
  var HEARTBEAT_MS = {{.HeartbeatMs}};
  var JITTER_MS = {{.JitterMs}};
  var ACTIVITY_TIMEOUT_MS = {{.ActivityTimeoutMs}};
  var DEBOUNCE_MS = {{.DebounceMs}};

  function randomId(prefix) {
    if (window.crypto && window.crypto.randomUUID) { return window.crypto.randomUUID(); }
    return prefix + '_' + Date.now() + '_' + Math.random().toString(36).slice(2, 11);
  }

  function storedId(storage, key, prefix) {
    try {
      var value = storage.getItem(key);
      if (!value) { value = randomId(prefix); storage.setItem(key, value); }
      return value;
    } catch (e) {
      return randomId(prefix);
    }
  }

  var visitorId = storedId(window.localStorage, 'storepulse_visitor_id', 'visitor');
  var sessionId = storedId(window.sessionStorage, 'storepulse_session_id', 'session');
  var lastActivity = Date.now();
  var lastTimestamp = 0;
  var timer = null;
  var debounced = false;

  function payload(activity) {
    var ts = Date.now();
    if (ts <= lastTimestamp) { ts = lastTimestamp + 1; }
    lastTimestamp = ts;
    return JSON.stringify({
      visitorId: visitorId,
      sessionId: sessionId,
      shop: SHOP,
      timestamp: ts,
      activity: activity,
      userAgent: navigator.userAgent
    });
  }

  function send(activity) {
    try {
      fetch(BASE + '/api/tracking/presence/beat', {
        method: 'POST',
        headers: { 'Content-Type': 'application/json' },
        body: payload(activity),
        keepalive: true
      }).catch(function () {});
    } catch (e) {}
  }

  function schedule() {
    var delay = HEARTBEAT_MS + Math.round(Math.random() * JITTER_MS * 2 - JITTER_MS);
    timer = setTimeout(function () {
      if (Date.now() - lastActivity <= ACTIVITY_TIMEOUT_MS || !document.hidden) {
        send('heartbeat');
      }
      schedule();
    }, delay);
  }

  function onActivity() {
    lastActivity = Date.now();
    if (debounced) { return; }
    debounced = true;
    setTimeout(function () { debounced = false; }, DEBOUNCE_MS);
    send('activity');
  }

  function onUnload() {
    var body = payload('unload');
    if (navigator.sendBeacon) {
      navigator.sendBeacon(BASE + '/api/tracking/presence/bye', body);
    } else {
      send('unload');
    }
  }

  function start() {
    send('heartbeat');
    schedule();
    ['mousedown', 'mousemove', 'keydown', 'scroll', 'touchstart'].forEach(function (name) {
      document.addEventListener(name, onActivity, { capture: true, passive: true });
    });
    window.addEventListener('pagehide', onUnload);
  }

  window.StorepulsePresence = {
    visitorId: visitorId,
    sessionId: sessionId,
    stop: function () { if (timer) { clearTimeout(timer); timer = null; } }
  };

  if (document.readyState === 'loading') {
    document.addEventListener('DOMContentLoaded', start);
  } else {
    start();
  }
})();
`))

type scriptData struct {
	BaseURL           string
	Shop              string
	HeartbeatMs       int64
	JitterMs          int64
	ActivityTimeoutMs int64
	DebounceMs        int64
}

// Script serves the heartbeat emitter for a shop.
func (h *Handler) Script(w http.ResponseWriter, r *http.Request) {
	shop, err := shopParam(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	var buf bytes.Buffer
	err = scriptTemplate.Execute(&buf, scriptData{
		BaseURL:           h.baseURL(r),
		Shop:              shop,
		HeartbeatMs:       scriptHeartbeat.Milliseconds(),
		JitterMs:          scriptJitter.Milliseconds(),
		ActivityTimeoutMs: scriptActivityTimeout.Milliseconds(),
		DebounceMs:        scriptDebounce.Milliseconds(),
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=300")
	if _, err := w.Write(buf.Bytes()); err != nil {
		logging.Ctx(r.Context()).Debug().Err(err).Msg("Failed to write presence script")
	}
}

// baseURL prefers server.public_url and otherwise rebuilds the origin the
// request was made to.
func (h *Handler) baseURL(r *http.Request) string {
	if h.cfg.Server.PublicURL != "" {
		return strings.TrimRight(h.cfg.Server.PublicURL, "/")
	}
	scheme := "http"
	if r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}
