package httpapi

import (
	"net/http"

	"bank-risk-audit/internal/rbac"

	"github.com/gin-gonic/gin"
)

// ListNotifications lists the outcome notifications sent to a customer, newest
// first. Customers always get their own; staff name the customer.
func (h Handlers) ListNotifications(c *gin.Context) {
	if h.Notifications == nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "notification history disabled"})
		return
	}
	s, role, ok := session(c)
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit")
	if !ok {
		return
	}
	customerID := c.Query("customer_id")
	if role == rbac.RoleUser {
		customerID = s.UserID
	}
	if customerID == "" {
		badRequest(c, "customer_id is required")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"customer_id":   customerID,
		"notifications": h.Notifications.ForCustomer(customerID, limit),
	})
}
