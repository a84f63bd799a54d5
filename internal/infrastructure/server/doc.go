// Package server wires configuration, the browser orchestrator, the
// version query path, the rewrite proxy and the gin control surface into
// one process.
//
//	srv, err := server.NewServer(cfg)
//	if err != nil {
//		return err
//	}
//	defer srv.Close()
//	return srv.Run(ctx)
package server
