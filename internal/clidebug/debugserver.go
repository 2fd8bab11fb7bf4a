// Package clidebug starts an optional local HTTP server exposing pprof and
// golang.org/x/net/trace diagnostics for a running CLI process.
package clidebug

import (
	"fmt"
	"html/template"
	"net"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof handlers on DefaultServeMux
	_ "golang.org/x/net/trace" // registers /debug/requests and /debug/events handlers

	"github.com/sirupsen/logrus"
)

var tocTemplate = template.Must(template.New("").Parse(`
	<html><body>
		{{range .}}
			<p><a href="{{.Path}}">{{.Text}}</a></p>
		{{end}}
	</body></html>`))

var tableOfContents = []struct {
	Text string
	Path string
}{
	{"Profiling", "/debug/pprof"},
	{"Download a 30-second CPU profile", "/debug/pprof/profile"},
	{"Download a trace file (add ?seconds=x to specify sample length)", "/debug/pprof/trace"},
	{"Requests", "/debug/requests"},
	{"Event log", "/debug/events"},
}

// Start binds a random localhost port and serves pprof/trace diagnostics on
// it in the background. Returns the bound address, or an error if the
// listener could not be created.
func Start(log *logrus.Logger) (addr net.Addr, err error) {
	listener, err := net.ListenTCP("tcp", &net.TCPAddr{
		IP:   net.ParseIP("127.0.0.1"),
		Port: 0,
	})
	if err != nil {
		return nil, fmt.Errorf("starting debug server: %w", err)
	}

	http.HandleFunc("/debug", func(w http.ResponseWriter, req *http.Request) {
		tocTemplate.Execute(w, tableOfContents)
	})

	go func() {
		defer listener.Close()
		if err := http.Serve(listener, nil); err != nil {
			log.WithError(err).Error("debug server stopped")
		}
	}()

	log.Infof("debug server listening on http://%s/debug", listener.Addr())
	return listener.Addr(), nil
}
