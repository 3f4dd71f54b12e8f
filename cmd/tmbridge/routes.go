package main

import (
	"github.com/labstack/echo/v4"

	"github.com/namaste/tmbridge/internal/platform/fhir"
)

type routeRegistrar interface {
	RegisterRoutes(api *echo.Group, fhirGroup *echo.Group)
}

type capabilityRegistrar interface {
	RegisterCapabilities(b *fhir.CapabilityBuilder)
}

// mountAPI mounts /api/v1 and /fhir behind the same limiter instance, so a
// client has one request budget across both. /fhir/metadata skips auth.
func mountAPI(e *echo.Echo, limiter, authMW echo.MiddlewareFunc, caps *fhir.CapabilityBuilder, registrars ...routeRegistrar) {
	apiV1 := e.Group("/api/v1", limiter, authMW)
	fhirGroup := e.Group("/fhir", limiter, authMW)

	for _, r := range registrars {
		r.RegisterRoutes(apiV1, fhirGroup)
		if cr, ok := r.(capabilityRegistrar); ok && caps != nil {
			cr.RegisterCapabilities(caps)
		}
	}
	if caps != nil {
		e.GET("/fhir/metadata", fhir.MetadataHandler(caps), limiter)
	}
}
