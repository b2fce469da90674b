// Package logging provides structured logging for firmd on top of zap.
//
// The Logger adds a Trace level below Debug, injects trace, tenant and
// request fields from the context, masks sensitive keys such as tax_id or
// iban before they reach stdout, and samples entries below Error.
//
//	cfg, _ := logging.ConfigFor("info", "json")
//	logger, err := logging.NewLogger(cfg, nil)
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	ctx, _ = logging.WithTenant(ctx, logging.Tenant{OrgID: "acme", UserID: "u-17"})
//	logger.Info(ctx, "invoice paid", zap.String("invoice.id", id))
//
// Tests use NewTestLogger and its assertion helpers.
package logging
