package webservice

import (
	"context"

	"github.com/ArionMiles/trackmanager/pkg/api"
)

// Endpoints of the track API.
var (
	EndpointGetUserAccounts    = api.Endpoint{Action: "get", FunctionName: "getUserAccounts"}
	EndpointGetBookings        = api.Endpoint{Action: "get", FunctionName: "getBookings"}
	EndpointAddBooking         = api.Endpoint{Action: "set", FunctionName: "addBooking"}
	EndpointSetBooking         = api.Endpoint{Action: "set", FunctionName: "setBooking"}
	EndpointGetCategories      = api.Endpoint{Action: "get", FunctionName: "getCategories"}
	EndpointGetAdminUsers      = api.Endpoint{Action: "get", FunctionName: "getAdminUsers"}
	EndpointSetAdminUser       = api.Endpoint{Action: "set", FunctionName: "setAdminUser"}
	EndpointDeleteAdminUser    = api.Endpoint{Action: "delete", FunctionName: "deleteAdminUser"}
	EndpointSetAdminActiveUser = api.Endpoint{Action: "set", FunctionName: "setAdminActiveUser"}
)

// GetUserAccounts returns id and name of the accounts the current user is
// involved with.
func (s *Service) GetUserAccounts(ctx context.Context, loadingText string, onSuccess api.SuccessFunc) <-chan api.Result {
	return s.Execute(ctx, loadingText, EndpointGetUserAccounts, onSuccess, nil, nil, nil)
}

// GetBookings returns the bookings of the given accounts between startDate
// and endDate.
func (s *Service) GetBookings(ctx context.Context, loadingText string, accountIDs []int, startDate, endDate string, onSuccess api.SuccessFunc) <-chan api.Result {
	return s.Execute(ctx, loadingText, EndpointGetBookings, onSuccess, nil, api.Parameters{
		"aAccounts":  accountIDs,
		"sStartDate": startDate,
		"sEndDate":   endDate,
	}, nil)
}

// AddBooking stores a new booking; the server answers with its id.
// b.ID is ignored.
func (s *Service) AddBooking(ctx context.Context, loadingText string, b api.Booking, onSuccess api.SuccessFunc) <-chan api.Result {
	b.ID = 0
	return s.Execute(ctx, loadingText, EndpointAddBooking, onSuccess, nil, b.Parameters(), nil)
}

// SetBooking saves b as "oBooking". The booking id is only sent when set.
func (s *Service) SetBooking(ctx context.Context, loadingText string, b api.Booking, onSuccess api.SuccessFunc) <-chan api.Result {
	return s.Execute(ctx, loadingText, EndpointSetBooking, onSuccess, nil, api.Parameters{
		"oBooking": b.Parameters(),
	}, nil)
}

// GetCategories returns the categories available to the given accounts.
func (s *Service) GetCategories(ctx context.Context, loadingText string, accountIDs []int, onSuccess api.SuccessFunc) <-chan api.Result {
	return s.Execute(ctx, loadingText, EndpointGetCategories, onSuccess, nil, api.Parameters{
		"aAccounts": accountIDs,
	}, nil)
}

// GetAdminUsers lists the admin users.
func (s *Service) GetAdminUsers(ctx context.Context, loadingText string, onSuccess api.SuccessFunc) <-chan api.Result {
	return s.Execute(ctx, loadingText, EndpointGetAdminUsers, onSuccess, nil, nil, nil)
}

// SetAdminUser creates u, or updates it when u.ID is set.
func (s *Service) SetAdminUser(ctx context.Context, loadingText string, u api.AdminUser, onSuccess api.SuccessFunc) <-chan api.Result {
	return s.Execute(ctx, loadingText, EndpointSetAdminUser, onSuccess, nil, u.Parameters(), nil)
}

// DeleteAdminUser deletes the admin user with the given id.
func (s *Service) DeleteAdminUser(ctx context.Context, loadingText string, userID int, onSuccess api.SuccessFunc) <-chan api.Result {
	return s.Execute(ctx, loadingText, EndpointDeleteAdminUser, onSuccess, nil, api.Parameters{
		"iUserId": userID,
	}, nil)
}

// SetAdminActiveUser toggles the active state of the admin user with the
// given id.
func (s *Service) SetAdminActiveUser(ctx context.Context, loadingText string, userID int, onSuccess api.SuccessFunc) <-chan api.Result {
	return s.Execute(ctx, loadingText, EndpointSetAdminActiveUser, onSuccess, nil, api.Parameters{
		"iUserId": userID,
	}, nil)
}
