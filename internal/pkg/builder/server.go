package builder

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/mevshield/coordinator/internal/pkg/database/batchdb"
	"github.com/mevshield/coordinator/internal/pkg/model"
	"github.com/mevshield/coordinator/internal/pkg/service/batchapi"
	"github.com/mevshield/coordinator/internal/pkg/service/bridge"
	"github.com/mevshield/coordinator/internal/pkg/service/coordinator"
	"github.com/mevshield/coordinator/internal/pkg/service/dispatcher"
)

type setupRoute func(router *gin.RouterGroup, svc *coordinator.Service)

type Server struct {
	engine *gin.Engine
}

func NewServer(configFile string) (*Server, error) {
	c, err := loadJobConfig(configFile)
	if err != nil {
		return nil, err
	}

	db, err := NewPostgres(&c.Database)
	if err != nil {
		return nil, err
	}
	if err := batchdb.Migrate(db); err != nil {
		return nil, err
	}

	c.Redis.Prefix += ":" + c.Config.Network
	r, err := New(&c.Redis)
	if err != nil {
		return nil, err
	}

	privKey, err := loadSignerKey()
	if err != nil {
		return nil, err
	}
	apiCfg, err := loadAPIConfig()
	if err != nil {
		return nil, err
	}

	repo := batchdb.NewBatchDB(db)
	evmBridge := bridge.NewEVMBridge(&c.Config, privKey)
	svc := coordinator.NewService(repo, evmBridge, r, dispatcher.New())

	setup := []setupRoute{
		batchapi.SetupRouter,
	}

	engine, router := newHTTP("/v1/coordinator", apiCfg.Key)
	router.GET("/status", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{
			"service": "batch-coordinator",
			"network": c.Config.Network,
			"chainId": c.Config.ChainID,
		})
	})
	for _, route := range setup {
		route(router.Group("/"), svc)
	}

	return &Server{engine: engine}, nil
}

func (s *Server) Run() error {
	return s.engine.Run()
}

func newHTTP(rootPath, apiKey string) (*gin.Engine, *gin.RouterGroup) {
	server := gin.Default()
	setCORS(server)
	server.GET("/ping", func(c *gin.Context) { c.AbortWithStatus(http.StatusOK) })
	server.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK", "timestamp": time.Now().UTC()})
	})
	router := server.Group(rootPath)
	if apiKey != "" {
		router.Use(requireAPIKey(apiKey))
	}
	return server, router
}

// requireAPIKey guards mutating endpoints with a static bearer token. Reads
// stay open.
func requireAPIKey(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodGet {
			c.Next()
			return
		}
		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if token != key {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"message": "invalid api key",
				"data":    gin.H{"code": model.ErrCodeAuthentication},
			})
			return
		}
		c.Next()
	}
}

func setCORS(engine *gin.Engine) {
	corsConfig := cors.DefaultConfig()
	corsConfig.AddAllowMethods(http.MethodOptions)
	corsConfig.AllowAllOrigins = true
	corsConfig.AddAllowHeaders("Authorization")
	corsConfig.AddAllowHeaders("x-request-id")
	corsConfig.AddAllowHeaders("X-Request-Id")
	engine.Use(cors.New(corsConfig))
}
