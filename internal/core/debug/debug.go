package debug

import (
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/davecgh/go-spew/spew"
	"github.com/sirupsen/logrus"

	"github.com/queuegate/queuegate/internal/protocol"
)

var dumper = spew.ConfigState{Indent: "  ", MaxDepth: 3, DisableMethods: true}

// StartUtilities spins off the services associated with debug mode.
func StartUtilities(logger *logrus.Logger, pprofPort int) {
	startPprofServer(logger, pprofPort)
}

// This function starts the default pprof HTTP server that can be accessed via
// localhost to get runtime information about the proxy.
// See https://golang.org/pkg/net/http/pprof/
func startPprofServer(logger *logrus.Logger, pprofPort int) {
	listenerAddr := fmt.Sprintf("localhost:%d", pprofPort)
	logger.Infof("starting pprof server on %s", listenerAddr)

	go func() {
		if err := http.ListenAndServe(listenerAddr, nil); err != nil {
			logger.Infof("error starting pprof server: %s", err)
		}
	}()
}

// PrintPacket dumps a decoded packet to stdout when packet logging is on.
// Raw frames print as an id and length rather than a full hex dump.
func PrintPacket(direction string, pkt protocol.Packet) {
	if raw, ok := pkt.(*protocol.Raw); ok {
		fmt.Fprintf(os.Stdout, "[%s] raw 0x%02x (%d bytes)\n", direction, raw.ID, len(raw.Payload))
		return
	}
	fmt.Fprintf(os.Stdout, "[%s] %s %s", direction, pkt.Name(), dumper.Sdump(pkt))
}
