package batchapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mevshield/coordinator/internal/pkg/model"
	"github.com/mevshield/coordinator/internal/pkg/service/coordinator"
	"github.com/mevshield/coordinator/pkg/context"
)

func SetupRouter(router *gin.RouterGroup, svc *coordinator.Service) {
	router.POST("/batches", postBatch(svc))
	router.GET("/batches", getBatches(svc))
	router.GET("/batches/current", getCurrentBatch(svc))
	router.GET("/batches/:id", getBatch(svc))
	router.POST("/batches/:id/advance", postAdvance(svc))
	router.POST("/batches/:id/cancel", postCancel(svc))
	router.POST("/batches/:id/finalize", postFinalize(svc))
	router.POST("/commitments", postCommitment(svc))
	router.POST("/reveals", postReveal(svc))
	router.GET("/statistics", getStatistics(svc))
}

func postBatch(svc *coordinator.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := context.New(c).WithLogPrefix("post-batches-api")
		var req coordinator.CreateBatchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			ctx.Infof("failed to bind params, err: %v", err)
			ctx.AbortWith400(err.Error())
			return
		}
		resp, err := svc.CreateBatch(c.Request.Context(), req)
		if err != nil {
			respondErr(ctx, err)
			return
		}
		ctx.RespondWith(http.StatusCreated, "batch created", resp)
	}
}

func getBatches(svc *coordinator.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := context.New(c).WithLogPrefix("get-batches-api")
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

		var filters model.BatchFilters
		if raw := c.Query("status"); raw != "" {
			status := model.BatchStatus(raw)
			filters.Status = &status
		}
		if raw := c.Query("orderingMethod"); raw != "" {
			method := model.OrderingMethod(raw)
			if !method.Valid() {
				ctx.AbortWith400("unknown ordering method")
				return
			}
			filters.OrderingMethod = &method
		}
		if raw := c.Query("from"); raw != "" {
			from, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				ctx.AbortWith400("malformed from date")
				return
			}
			filters.DateFrom = &from
		}
		if raw := c.Query("to"); raw != "" {
			to, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				ctx.AbortWith400("malformed to date")
				return
			}
			filters.DateTo = &to
		}

		result, err := svc.ListBatches(c.Request.Context(), page, limit, filters)
		if err != nil {
			respondErr(ctx, err)
			return
		}
		items := make([]*model.BatchResponse, 0, len(result.Items))
		for _, b := range result.Items {
			items = append(items, model.NewBatchResponse(b))
		}
		ctx.RespondWith(http.StatusOK, "ok", gin.H{
			"items": items,
			"total": result.Total,
			"page":  result.Page,
			"limit": result.Limit,
			"pages": result.Pages,
		})
	}
}

func getCurrentBatch(svc *coordinator.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := context.New(c).WithLogPrefix("get-current-batch-api")
		resp, err := svc.GetCurrentBatch(c.Request.Context())
		if err != nil {
			respondErr(ctx, err)
			return
		}
		ctx.RespondWith(http.StatusOK, "ok", resp)
	}
}

func getBatch(svc *coordinator.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := context.New(c).WithLogPrefix("get-batch-api")
		resp, err := svc.GetBatch(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondErr(ctx, err)
			return
		}
		ctx.RespondWith(http.StatusOK, "ok", resp)
	}
}

func postAdvance(svc *coordinator.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := context.New(c).WithLogPrefix("post-advance-api")
		resp, err := svc.AdvancePhase(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondErr(ctx, err)
			return
		}
		ctx.RespondWith(http.StatusOK, "phase advanced", resp)
	}
}

func postCancel(svc *coordinator.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := context.New(c).WithLogPrefix("post-cancel-api")
		var req coordinator.CancelBatchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			ctx.Infof("failed to bind params, err: %v", err)
			ctx.AbortWith400(err.Error())
			return
		}
		req.BatchID = c.Param("id")
		resp, err := svc.CancelBatch(c.Request.Context(), req)
		if err != nil {
			respondErr(ctx, err)
			return
		}
		ctx.RespondWith(http.StatusOK, "batch cancelled", resp)
	}
}

func postFinalize(svc *coordinator.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := context.New(c).WithLogPrefix("post-finalize-api")
		var req coordinator.FinalizeBatchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			ctx.Infof("failed to bind params, err: %v", err)
			ctx.AbortWith400(err.Error())
			return
		}
		req.BatchID = c.Param("id")
		resp, err := svc.FinalizeBatch(c.Request.Context(), req)
		if err != nil {
			respondErr(ctx, err)
			return
		}
		ctx.Event("batch-finalized", resp.ID)
		ctx.RespondWith(http.StatusOK, "batch finalized", resp)
	}
}

func postCommitment(svc *coordinator.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := context.New(c).WithLogPrefix("post-commitments-api")
		var req coordinator.SubmitCommitmentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			ctx.Infof("failed to bind params, err: %v", err)
			ctx.AbortWith400(err.Error())
			return
		}
		resp, err := svc.SubmitCommitment(c.Request.Context(), req)
		if err != nil {
			respondErr(ctx, err)
			return
		}
		ctx.RespondWith(http.StatusCreated, "commitment recorded", resp)
	}
}

func postReveal(svc *coordinator.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := context.New(c).WithLogPrefix("post-reveals-api")
		var req coordinator.RevealTransactionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			ctx.Infof("failed to bind params, err: %v", err)
			ctx.AbortWith400(err.Error())
			return
		}
		resp, err := svc.RevealTransaction(c.Request.Context(), req)
		if err != nil {
			respondErr(ctx, err)
			return
		}
		ctx.RespondWith(http.StatusCreated, "transaction revealed", resp)
	}
}

func getStatistics(svc *coordinator.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := context.New(c).WithLogPrefix("get-statistics-api")
		now := time.Now()
		from := now.AddDate(0, 0, -7)
		to := now
		if raw := c.Query("from"); raw != "" {
			parsed, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				ctx.AbortWith400("malformed from date")
				return
			}
			from = parsed
		}
		if raw := c.Query("to"); raw != "" {
			parsed, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				ctx.AbortWith400("malformed to date")
				return
			}
			to = parsed
		}
		stats, err := svc.GetStatistics(c.Request.Context(), from, to)
		if err != nil {
			respondErr(ctx, err)
			return
		}
		ctx.RespondWith(http.StatusOK, "ok", stats)
	}
}

// respondErr maps stable error codes onto HTTP statuses. Client induced
// codes surface as 4xx with the code in the payload, everything else is a
// 500 with the detail kept in the logs.
func respondErr(ctx *context.Context, err error) {
	code := model.CodeOf(err)
	status := statusFor(code)
	if status >= http.StatusInternalServerError {
		ctx.Errorf("request failed, code: %s, err: %v", code, err)
		ctx.RespondWith(status, "internal error", gin.H{"code": code})
		return
	}
	ctx.Infof("request rejected, code: %s, err: %v", code, err)
	ctx.RespondWith(status, err.Error(), gin.H{"code": code})
}

func statusFor(code model.ErrorCode) int {
	switch code {
	case model.ErrCodeBatchNotFound, model.ErrCodeNoActiveBatch:
		return http.StatusNotFound
	case model.ErrCodeAuthentication:
		return http.StatusUnauthorized
	case model.ErrCodeAuthorization:
		return http.StatusForbidden
	case model.ErrCodeRateLimit:
		return http.StatusTooManyRequests
	case model.ErrCodeInvalidBatchStatus, model.ErrCodeCommitmentAlreadyExists,
		model.ErrCodeInvalidCommitment, model.ErrCodeRevealPhaseNotActive,
		model.ErrCodeNoMatchingCommitment, model.ErrCodeTxRevealMismatch,
		model.ErrCodeInvalidArgument, model.ErrCodeValidation:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
