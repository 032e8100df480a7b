package handlers

import "github.com/gin-gonic/gin"

// Handlers groups every HTTP handler of the service
type Handlers struct {
	Tenants       *TenantHandler
	Addons        *AddonHandler
	Plans         *PlanHandler
	Subscriptions *SubscriptionHandler
	Payments      *PaymentHandler
	Settings      *SettingsHandler
	Users         *UserHandler
}

// RegisterRoutes mounts the admin API on api (normally /api/v1)
func RegisterRoutes(api *gin.RouterGroup, h Handlers) {
	tenants := api.Group("/tenants")
	{
		tenants.GET("", h.Tenants.ListTenants)
		tenants.POST("", h.Tenants.CreateTenant)
		tenants.GET("/can-create", h.Tenants.CanCreate)
		tenants.GET("/code/:code", h.Tenants.GetTenantByCode)
		tenants.GET("/:id", h.Tenants.GetTenant)
		tenants.PUT("/:id/status", h.Tenants.UpdateStatus)
		tenants.GET("/:id/members", h.Tenants.ListMembers)
		tenants.POST("/:id/invitations", h.Tenants.Invite)

		tenants.GET("/:id/addons", h.Addons.ListTenantAddons)
		tenants.POST("/:id/addons", h.Addons.AssignAddon)
		tenants.POST("/:id/addons/:addonId/cancel", h.Addons.CancelAddon)
		tenants.DELETE("/:id/addons/:addonId", h.Addons.RemoveAddon)
		tenants.GET("/:id/features/:featureId/limit", h.Addons.FeatureLimit)
	}

	api.POST("/invitations/accept", h.Tenants.AcceptInvitation)

	tenantAddons := api.Group("/tenant-addons")
	{
		tenantAddons.PUT("/:id/quantity", h.Addons.UpdateQuantity)
		tenantAddons.POST("/:id/extend", h.Addons.ExtendAddon)
	}

	addons := api.Group("/addons")
	{
		addons.GET("", h.Addons.ListAddons)
		addons.POST("", h.Addons.CreateAddon)
		addons.GET("/:id", h.Addons.GetAddon)
		addons.PUT("/:id", h.Addons.UpdateAddon)
		addons.DELETE("/:id", h.Addons.DeleteAddon)
	}

	plans := api.Group("/plans")
	{
		plans.GET("", h.Plans.ListPlans)
		plans.POST("", h.Plans.CreatePlan)
		plans.GET("/:id", h.Plans.GetPlan)
		plans.PUT("/:id", h.Plans.UpdatePlan)
		plans.POST("/:id/prices", h.Plans.AddPrice)
		plans.PUT("/:id/features/:featureId", h.Plans.SetPlanFeature)
	}

	features := api.Group("/features")
	{
		features.GET("", h.Plans.ListFeatures)
		features.POST("", h.Plans.CreateFeature)
	}

	subscriptions := api.Group("/subscriptions")
	{
		subscriptions.GET("", h.Subscriptions.ListSubscriptions)
		subscriptions.POST("", h.Subscriptions.Subscribe)
		subscriptions.GET("/:id", h.Subscriptions.GetSubscription)
		subscriptions.POST("/:id/cancel", h.Subscriptions.CancelSubscription)
		subscriptions.POST("/:id/resume", h.Subscriptions.ResumeSubscription)
		subscriptions.POST("/:id/change-plan", h.Subscriptions.ChangePlan)
	}

	payments := api.Group("/payments")
	{
		payments.GET("", h.Payments.ListPayments)
		payments.POST("", h.Payments.RecordPayment)
		payments.GET("/:id", h.Payments.GetPayment)
		payments.PUT("/:id/status", h.Payments.UpdateStatus)
		payments.POST("/:id/invoice", h.Payments.MarkInvoiced)
	}

	settings := api.Group("/settings")
	{
		settings.GET("", h.Settings.GetAll)
		settings.PUT("", h.Settings.UpdateMany)
		settings.GET("/public", h.Settings.GetPublic)
		settings.DELETE("/cache", h.Settings.ClearCache)
		settings.GET("/:key", h.Settings.GetKey)
	}

	users := api.Group("/users")
	{
		users.GET("", h.Users.ListUsers)
		users.POST("", h.Users.RegisterUser)
		users.GET("/:id", h.Users.GetUser)
		users.PUT("/:id", h.Users.UpdateProfile)
		users.PUT("/:id/password", h.Users.ChangePassword)
		users.PUT("/:id/status", h.Users.UpdateStatus)
	}
}
