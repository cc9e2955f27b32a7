package service

import "materialscat/internal/apierrors"

var (
	errIngestionNotConfigured  = apierrors.New(apierrors.CodeBackendsUnavailable, "batch ingestion is not configured for this deployment")
	errPriceListsNotConfigured = apierrors.New(apierrors.CodeBackendsUnavailable, "price-list ingestion is not configured for this deployment")
)
