package controllers

import (
	"errors"
	"io"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/priya-sharma/stitchbook-api/middleware"
	"github.com/priya-sharma/stitchbook-api/models"
	"github.com/priya-sharma/stitchbook-api/repository"
	"github.com/priya-sharma/stitchbook-api/store"
	"github.com/priya-sharma/stitchbook-api/utils"
)

// OrderController handles the order CRUD, payment and image endpoints.
// It keeps a cached count summary invalidated through the change notifier.
type OrderController struct {
	repo *repository.OrderRepository

	mu      sync.Mutex
	summary *orderSummary
}

type orderSummary struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Delivered int `json:"delivered"`
	Unsynced  int `json:"unsynced"`
}

// NewOrderController creates an OrderController and subscribes its summary
// cache to store changes.
func NewOrderController(repo *repository.OrderRepository, notifier *store.ChangeNotifier) *OrderController {
	oc := &OrderController{repo: repo}
	notifier.Subscribe(func(storeName string) {
		if storeName != store.StoreOrders {
			return
		}
		oc.mu.Lock()
		oc.summary = nil
		oc.mu.Unlock()
	})
	return oc
}

// CreateOrderRequest represents the request body for creating an order
type CreateOrderRequest struct {
	OrderID        string `json:"orderId" binding:"required"`
	CustomerName   string `json:"customerName" binding:"required"`
	BookingDate    string `json:"bookingDate" binding:"required"`
	DeliveryDate   string `json:"deliveryDate" binding:"required"`
	Measurements   string `json:"measurements"`
	ProductDetails string `json:"productDetails" binding:"required"`
	Notes          string `json:"notes"`
	PriceTotal     string `json:"priceTotal"`
	AdvancePaid    string `json:"advancePaid"`
	PaymentMethod  string `json:"paymentMethod"`
}

// UpdateOrderRequest represents the request body for editing an order.
// Absent fields are left untouched; money never moves through this endpoint.
type UpdateOrderRequest struct {
	OrderID        *string `json:"orderId"`
	CustomerName   *string `json:"customerName"`
	BookingDate    *string `json:"bookingDate"`
	DeliveryDate   *string `json:"deliveryDate"`
	Measurements   *string `json:"measurements"`
	ProductDetails *string `json:"productDetails"`
	Notes          *string `json:"notes"`
	Status         *string `json:"status"`
}

// PaymentRequest represents the request body for recording a payment change
type PaymentRequest struct {
	Kind   string `json:"kind" binding:"required"` // add-payment or set-advance
	Amount string `json:"amount" binding:"required"`
	Method string `json:"method"`
	Note   string `json:"note"`
}

// List handles GET /api/v1/orders - most recent first
func (oc *OrderController) List(c *gin.Context) {
	orders, err := oc.repo.ReadAll()
	if err != nil {
		respondError(c, err)
		return
	}

	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})

	redacted := isStaff(c)
	out := make([]gin.H, 0, len(orders))
	for _, order := range orders {
		out = append(out, orderJSON(order, redacted))
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    out,
	})
}

// Get handles GET /api/v1/orders/:id
func (oc *OrderController) Get(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}

	order, found, err := oc.repo.ReadByID(id)
	if err != nil {
		respondError(c, err)
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "NOT_FOUND",
				"message": "Order not found",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    orderJSON(order, isStaff(c)),
	})
}

// Create handles POST /api/v1/orders
func (oc *OrderController) Create(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "Invalid request data",
				"details": err.Error(),
			},
		})
		return
	}

	bookingDate, err := parseDate(req.BookingDate)
	if err != nil {
		badDate(c, "bookingDate")
		return
	}
	deliveryDate, err := parseDate(req.DeliveryDate)
	if err != nil {
		badDate(c, "deliveryDate")
		return
	}

	total, err := parseAmount(req.PriceTotal)
	if err != nil {
		badAmount(c, "priceTotal")
		return
	}
	paid, err := parseAmount(req.AdvancePaid)
	if err != nil {
		badAmount(c, "advancePaid")
		return
	}

	order, err := oc.repo.Create(models.CreateOrderInput{
		OrderCode:      req.OrderID,
		CustomerName:   req.CustomerName,
		BookingDate:    bookingDate,
		DeliveryDate:   deliveryDate,
		Measurements:   req.Measurements,
		ProductDetails: req.ProductDetails,
		Notes:          req.Notes,
		Images:         []string{},
		PriceTotal:     total,
		AdvancePaid:    paid,
		PaymentMethod:  models.PaymentMethod(req.PaymentMethod),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    orderJSON(order, isStaff(c)),
	})
}

// Update handles PATCH /api/v1/orders/:id
func (oc *OrderController) Update(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}

	var req UpdateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "Invalid request data",
				"details": err.Error(),
			},
		})
		return
	}

	cmd := models.OrderUpdate{
		OrderCode:      req.OrderID,
		CustomerName:   req.CustomerName,
		Measurements:   req.Measurements,
		ProductDetails: req.ProductDetails,
		Notes:          req.Notes,
	}

	if req.BookingDate != nil {
		d, err := parseDate(*req.BookingDate)
		if err != nil {
			badDate(c, "bookingDate")
			return
		}
		cmd.BookingDate = &d
	}
	if req.DeliveryDate != nil {
		d, err := parseDate(*req.DeliveryDate)
		if err != nil {
			badDate(c, "deliveryDate")
			return
		}
		cmd.DeliveryDate = &d
	}
	if req.Status != nil {
		status := models.OrderStatus(*req.Status)
		if status != models.StatusPending && status != models.StatusDelivered {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "VALIDATION_ERROR",
					"message": "status must be Pending or Delivered",
				},
			})
			return
		}
		cmd.Status = &status
	}

	if err := oc.repo.Update(id, cmd); err != nil {
		respondError(c, err)
		return
	}

	order, _, err := oc.repo.ReadByID(id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    orderJSON(order, isStaff(c)),
	})
}

// Deliver handles POST /api/v1/orders/:id/deliver
func (oc *OrderController) Deliver(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}

	status := models.StatusDelivered
	if err := oc.repo.Update(id, models.OrderUpdate{Status: &status}); err != nil {
		respondError(c, err)
		return
	}

	order, _, err := oc.repo.ReadByID(id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    orderJSON(order, isStaff(c)),
	})
}

// RecordPayment handles POST /api/v1/orders/:id/payments (admin only)
func (oc *OrderController) RecordPayment(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}

	var req PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "Invalid request data",
				"details": err.Error(),
			},
		})
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		badAmount(c, "amount")
		return
	}

	method := models.PaymentMethod(req.Method)

	switch models.PaymentChangeKind(req.Kind) {
	case models.ChangeAddPayment:
		err = oc.repo.AddPayment(id, amount, method, req.Note)
	case models.ChangeSetAdvance:
		err = oc.repo.SetAdvance(id, amount, method, req.Note)
	default:
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "kind must be add-payment or set-advance",
			},
		})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}

	order, _, err := oc.repo.ReadByID(id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    orderJSON(order, false),
	})
}

// AttachImage handles POST /api/v1/orders/:id/images
func (oc *OrderController) AttachImage(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}

	fileHeader, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "MISSING_FILE",
				"message": "An image file is required",
			},
		})
		return
	}

	mimeType, err := utils.ValidateImageFile(fileHeader)
	if err != nil {
		var uploadErr *utils.FileUploadError
		code := "INVALID_FILE"
		if errors.As(err, &uploadErr) {
			code = uploadErr.Code
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    code,
				"message": err.Error(),
			},
		})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		respondError(c, err)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(c, err)
		return
	}

	if err := oc.repo.AppendImage(id, utils.EncodeImage(data, mimeType)); err != nil {
		respondError(c, err)
		return
	}

	order, _, err := oc.repo.ReadByID(id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    orderJSON(order, isStaff(c)),
	})
}

// Summary handles GET /api/v1/orders/summary
func (oc *OrderController) Summary(c *gin.Context) {
	oc.mu.Lock()
	cached := oc.summary
	oc.mu.Unlock()

	if cached == nil {
		orders, err := oc.repo.ReadAll()
		if err != nil {
			respondError(c, err)
			return
		}

		fresh := &orderSummary{Total: len(orders)}
		for _, order := range orders {
			if order.Status == models.StatusDelivered {
				fresh.Delivered++
			} else {
				fresh.Pending++
			}
			if order.SyncStatus == models.SyncPending {
				fresh.Unsynced++
			}
		}

		oc.mu.Lock()
		oc.summary = fresh
		oc.mu.Unlock()
		cached = fresh
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    cached,
	})
}

// orderJSON flattens an order for the API. Staff responses never include
// the financial fields or the payment history.
func orderJSON(order models.Order, redacted bool) gin.H {
	out := gin.H{
		"id":               order.ID,
		"orderId":          order.OrderCode,
		"customerName":     order.CustomerName,
		"bookingDate":      order.BookingDate,
		"deliveryDate":     order.DeliveryDate,
		"measurements":     order.Measurements,
		"productDetails":   order.ProductDetails,
		"notes":            order.Notes,
		"images":           order.Images,
		"status":           order.Status,
		"deliveredAt":      order.DeliveredAt,
		"createdAt":        order.CreatedAt,
		"cloudId":          order.CloudID,
		"syncStatus":       order.SyncStatus,
		"lastSyncedAt":     order.LastSyncedAt,
		"imageStorageUrls": order.ImageStorageURLs,
	}

	if !redacted {
		out["priceTotal"] = order.PriceTotal.String()
		out["advancePaid"] = order.AdvancePaid.String()
		out["balanceAmount"] = order.BalanceAmount.String()
		out["paymentStatus"] = order.PaymentStatus
		out["paymentMethod"] = order.PaymentMethod
		out["paymentHistory"] = order.PaymentHistory
	}

	return out
}

func isStaff(c *gin.Context) bool {
	role, err := middleware.GetRole(c)
	return err == nil && role == models.RoleStaff
}

func orderID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_ID",
				"message": "Order id must be a positive integer",
			},
		})
		return 0, false
	}
	return uint(id), true
}

func parseDate(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", value)
}

func parseAmount(value string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(value)
}

func badDate(c *gin.Context, field string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error": gin.H{
			"code":    "VALIDATION_ERROR",
			"message": field + " must be an RFC3339 timestamp or YYYY-MM-DD date",
		},
	})
}

func badAmount(c *gin.Context, field string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error": gin.H{
			"code":    "VALIDATION_ERROR",
			"message": field + " must be a decimal amount",
		},
	})
}
