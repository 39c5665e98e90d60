package subcmd

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func init() {
	RootCmd.AddCommand(NewServeCommand())
}

type ServeCommand struct {
	Listen string
}

func NewServeCommand() *cobra.Command {
	serveCmd := &ServeCommand{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the publishing repository over HTTP for rebase clients",
		RunE:  serveCmd.run,
	}

	cmd.Flags().StringVar(&serveCmd.Listen, "listen", ":8000", "listen address")

	return cmd
}

func (s *ServeCommand) run(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Handle("/*", http.FileServer(http.Dir(cfg.ServeRepo)))

	srv := &http.Server{Addr: s.Listen, Handler: r}
	go func() {
		<-cmd.Context().Done()
		_ = srv.Close()
	}()

	logrus.Infof("serving %s on %s", cfg.ServeRepo, s.Listen)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
