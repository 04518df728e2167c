package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/voxelbrain/goptions"

	"github.com/vellumtpl/vellum"
)

type options struct {
	Verbose bool          `goptions:"-v, --verbose, description='Log verbosely'"`
	Help    goptions.Help `goptions:"-h, --help, description='Show help'"`

	goptions.Verbs
	Render struct {
		Template string `goptions:"-t, --template, obligatory, description='Template file to render'"`
		Context  string `goptions:"-c, --context, description='JSON file with the rendering context'"`
		Output   string `goptions:"-o, --output, description='Write the result to a file instead of stdout'"`
	} `goptions:"render"`
	Serve struct {
		Bind string `goptions:"-b, --bind, description='Address to bind on'"`
		Root string `goptions:"-r, --root, description='Template root directory'"`
	} `goptions:"serve"`
}

func main() {
	parsedOptions := options{}

	parsedOptions.Serve.Bind = ":8080"
	parsedOptions.Serve.Root = "."

	goptions.ParseAndFail(&parsedOptions)

	if parsedOptions.Verbose {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	switch parsedOptions.Verbs {
	case "render":
		runRender(parsedOptions)
	case "serve":
		runServe(parsedOptions)
	default:
		goptions.PrintHelp()
		os.Exit(2)
	}
}

func runRender(opts options) {
	env := vellum.NewEnvironment()
	env.SetLoader(vellum.DirLoader(filepath.Dir(opts.Render.Template)))

	ctx := map[string]any{}
	if opts.Render.Context != "" {
		raw, err := os.ReadFile(opts.Render.Context)
		if err != nil {
			log.WithError(err).Fatal("Could not read context file")
		}
		if err := json.Unmarshal(raw, &ctx); err != nil {
			log.WithError(err).Fatal("Could not parse context file")
		}
	}

	tmpl, err := env.CompileFile(opts.Render.Template)
	if err != nil {
		log.WithError(err).Fatal("Could not compile template")
	}

	out, err := tmpl.Render(ctx)
	if err != nil {
		log.WithError(err).Fatal("Could not render template")
	}

	if opts.Render.Output != "" {
		if err := os.WriteFile(opts.Render.Output, []byte(out), 0o644); err != nil {
			log.WithError(err).Fatal("Could not write output file")
		}
		return
	}
	fmt.Print(out)
}

func runServe(opts options) {
	env := vellum.NewEnvironment()
	env.SetLoader(vellum.DirLoader(opts.Serve.Root))

	if !log.IsLevelEnabled(log.DebugLevel) {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(requestLogger())
	router.Use(gin.Recovery())

	router.POST("/render", func(c *gin.Context) {
		var req struct {
			Template string         `json:"template"`
			Context  map[string]any `json:"context"`
		}
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		renderTo(c, env, req.Template, req.Context)
	})

	router.GET("/t/*template", func(c *gin.Context) {
		ctx := map[string]any{}
		for k, vs := range c.Request.URL.Query() {
			if len(vs) == 1 {
				ctx[k] = vs[0]
			} else {
				ctx[k] = vs
			}
		}
		renderTo(c, env, c.Param("template"), ctx)
	})

	log.WithField("bind", opts.Serve.Bind).Info("Starting template server")
	if err := router.Run(opts.Serve.Bind); err != nil {
		log.WithError(err).Fatal("Server exited")
	}
}

func renderTo(c *gin.Context, env *vellum.Environment, name string, ctx map[string]any) {
	tmpl, err := env.GetTemplate(filepath.Clean("/" + name)[1:])
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	out, err := tmpl.Render(ctx)
	if err != nil {
		log.WithError(err).Error("Render failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(out))
}

// requestLogger logs each request through logrus instead of gin's
// default writer.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(log.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start),
		}).Debug("Handled request")
	}
}
