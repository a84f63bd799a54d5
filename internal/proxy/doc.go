// Package proxy relays raw TCP between clients and a browser's debugging
// port.
//
// Browser responses embed the internal debugging port in URLs such as
// webSocketDebuggerUrl. Every occurrence of that ":<port>" token in browser
// to client traffic is replaced with the external port, including tokens
// split across reads. Both tokens have the same length, so framing and
// Content-Length stay valid. Client to browser traffic is not modified.
//
//	rule, _ := proxy.PortRule(9223, 9222)
//	p := proxy.New(proxy.Config{
//		ListenAddr: "0.0.0.0:9222",
//		TargetAddr: "127.0.0.1:9223",
//		Rule:       rule,
//	}, connector, logger)
//	err := p.ListenAndServe(ctx)
package proxy
