package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/julienschmidt/httprouter"
	"gopkg.in/yaml.v2"

	"github.com/gapotchenko/cgibridge"
)

// Route maps one URL pattern to a CGI program. A trailing "*path"
// wildcard in the pattern becomes the program's PATH_INFO.
type Route struct {
	Path      string            `yaml:"path"`
	Command   string            `yaml:"command"`
	Args      []string          `yaml:"args"`
	Streaming bool              `yaml:"streaming"`
	Env       map[string]string `yaml:"env"`

	ScriptName     string `yaml:"script_name"`
	PathTranslated string `yaml:"path_translated"`
	ServerSoftware string `yaml:"server_software"`
	ServerProtocol string `yaml:"server_protocol"`
	ServerPort     string `yaml:"server_port"`
}

type Config struct {
	Routes []Route `yaml:"routes"`
}

func loadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := yaml.UnmarshalStrict(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if len(cfg.Routes) == 0 {
		return nil, fmt.Errorf("config defines no routes")
	}

	for _, route := range cfg.Routes {
		if route.Path == "" {
			return nil, fmt.Errorf("route with command %q has no path", route.Command)
		}
		if err := validateCommand(route.Command); err != nil {
			return nil, fmt.Errorf("route %s: %w", route.Path, err)
		}
	}
	return &cfg, nil
}

// validateCommand ensures the configured program is a regular executable file.
// Lstat (does not follow symlinks) so the target cannot be swapped out from
// underneath the route table; symlinks are the root of many vulnerabilities.
func validateCommand(command string) error {
	if command == "" {
		return fmt.Errorf("command must not be empty")
	}
	if !filepath.IsAbs(command) {
		return fmt.Errorf("command path must be absolute: %s", command)
	}
	command = filepath.Clean(command)

	info, err := os.Lstat(command)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("command not found: %w", err)
		}
		return fmt.Errorf("failed to lstat command: %w", err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return fmt.Errorf("symlinks are unsupported: %s", command)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("command is not a regular file: %s", command)
	}
	if info.Mode().Perm()&0111 == 0 {
		return fmt.Errorf("command not executable: %s", command)
	}

	slog.Debug("command validated", "command", command)
	return nil
}

var routeMethods = []string{
	http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
	http.MethodPatch, http.MethodDelete, http.MethodOptions,
}

// buildRouter mounts every configured route for all request methods.
// httprouter reports pattern conflicts by panicking, which is turned
// back into an error here so startup fails cleanly.
func buildRouter(cfg *Config) (h http.Handler, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("registering routes: %v", r)
		}
	}()

	router := httprouter.New()
	for _, route := range cfg.Routes {
		route := route
		handle := func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
			opts := route.options()
			opts.PathInfo = ps.ByName("path")
			resp, err := cgibridge.Invoke(r.Context(), route.Command, route.Args, r, opts)
			if err != nil {
				slog.Error("failed to start CGI", "command", route.Command, "error", err)
				http.Error(w, "failed to start CGI: "+err.Error(), http.StatusBadGateway)
				return
			}
			if err := resp.Write(w); err != nil {
				slog.Warn("error writing CGI response", "path", route.Path, "error", err)
			}
		}
		for _, method := range routeMethods {
			router.Handle(method, route.Path, handle)
		}
	}
	return router, nil
}

func (r Route) options() *cgibridge.Options {
	scriptName := r.ScriptName
	if scriptName == "" {
		scriptName, _, _ = strings.Cut(r.Path, "/*")
	}
	return &cgibridge.Options{
		Streaming:      r.Streaming,
		Env:            r.Env,
		ScriptName:     scriptName,
		PathTranslated: r.PathTranslated,
		ServerSoftware: r.ServerSoftware,
		ServerProtocol: r.ServerProtocol,
		ServerPort:     r.ServerPort,
	}
}
