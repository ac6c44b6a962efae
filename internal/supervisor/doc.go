// Reelrank - Movie Rating Ranking Model Trainer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/reelrank

/*
Package supervisor runs the inference server's long-lived services under a
suture v4 tree:

	Root ("reelrank-serve")
	├── ModelSupervisor ("model-layer")
	│   └── ModelService
	└── APISupervisor ("api-layer")
	    └── HTTPServerService

The layers restart independently. A model directory that is not yet
populated keeps the loader retrying while the HTTP server answers /ping
with 503.

Supervisor events are logged through sutureslog, which takes a *slog.Logger;
logging.NewSlogLogger bridges that to the zerolog output used everywhere else.

	tree, err := supervisor.NewTree(logging.NewSlogLogger("supervisor"), supervisor.DefaultTreeConfig())
	tree.AddModelService(services.NewModelService(load, time.Second, 0))
	tree.AddAPIService(services.NewHTTPServerService(server, 15*time.Second))
	err = tree.Serve(ctx)
*/
package supervisor
