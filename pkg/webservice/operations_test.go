package webservice

import (
	"context"
	"testing"

	"github.com/ArionMiles/trackmanager/pkg/api"
	"github.com/ArionMiles/trackmanager/pkg/session"
)

func TestOperations_Targets(t *testing.T) {
	booking := api.Booking{AccountID: 1, MainCategoryID: 2, SubCategoryID: 3, Date: "2024-03-01", Description: "Rent", Frequency: 1, Type: 2, Value: 750}

	tests := []struct {
		name     string
		call     func(svc *Service) <-chan api.Result
		path     string
		function string
		form     map[string]string
	}{
		{
			name:     "GetUserAccounts",
			call:     func(svc *Service) <-chan api.Result { return svc.GetUserAccounts(context.Background(), "Loading", nil) },
			path:     "/get.php",
			function: "getUserAccounts",
		},
		{
			name: "GetBookings",
			call: func(svc *Service) <-chan api.Result {
				return svc.GetBookings(context.Background(), "Loading", []int{1, 2}, "2024-01-01", "2024-01-31", nil)
			},
			path:     "/get.php",
			function: "getBookings",
			form:     map[string]string{"aAccounts[]": "1", "sStartDate": "2024-01-01", "sEndDate": "2024-01-31"},
		},
		{
			name: "AddBooking",
			call: func(svc *Service) <-chan api.Result {
				b := booking
				b.ID = 9
				return svc.AddBooking(context.Background(), "Saving", b, nil)
			},
			path:     "/set.php",
			function: "addBooking",
			form: map[string]string{
				"iAccountId": "1", "iMainCategoryId": "2", "iSubCategoryId": "3",
				"sBookingDate": "2024-03-01", "sBookingDescription": "Rent",
				"iBookingFrequency": "1", "iBookingType": "2", "fBookingValue": "750",
			},
		},
		{
			name:     "GetCategories",
			call:     func(svc *Service) <-chan api.Result { return svc.GetCategories(context.Background(), "Loading", []int{5}, nil) },
			path:     "/get.php",
			function: "getCategories",
			form:     map[string]string{"aAccounts[]": "5"},
		},
		{
			name:     "GetAdminUsers",
			call:     func(svc *Service) <-chan api.Result { return svc.GetAdminUsers(context.Background(), "Loading", nil) },
			path:     "/get.php",
			function: "getAdminUsers",
		},
		{
			name:     "DeleteAdminUser",
			call:     func(svc *Service) <-chan api.Result { return svc.DeleteAdminUser(context.Background(), "Deleting", 12, nil) },
			path:     "/delete.php",
			function: "deleteAdminUser",
			form:     map[string]string{"iUserId": "12"},
		},
		{
			name:     "SetAdminActiveUser",
			call:     func(svc *Service) <-chan api.Result { return svc.SetAdminActiveUser(context.Background(), "Saving", 12, nil) },
			path:     "/set.php",
			function: "setAdminActiveUser",
			form:     map[string]string{"iUserId": "12"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv, reqs := newTestServer(t, respond(200, `{}`))
			svc := newTestService(srv, nil, session.Static("abc123"))

			wait(t, tc.call(svc))
			req := <-reqs

			if req.path != tc.path {
				t.Errorf("path: got %q, want %q", req.path, tc.path)
			}
			if req.function != tc.function {
				t.Errorf("function: got %q, want %q", req.function, tc.function)
			}
			if got := req.form.Get(SessionParam); got != "abc123" {
				t.Errorf("PHPSESSID: got %q", got)
			}
			for k, want := range tc.form {
				if got := req.form.Get(k); got != want {
					t.Errorf("%s: got %q, want %q", k, got, want)
				}
			}
			if tc.name == "AddBooking" && req.form.Has("iBookingId") {
				t.Error("AddBooking must not send a booking id")
			}
		})
	}
}

func TestSetBooking_BookingID(t *testing.T) {
	tests := []struct {
		name    string
		id      int
		want    string
		present bool
	}{
		{name: "unset id is omitted", id: 0},
		{name: "set id is sent", id: 42, want: "42", present: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv, reqs := newTestServer(t, respond(200, `{"iBookingId":42}`))
			svc := newTestService(srv, nil, nil)

			b := api.Booking{ID: tc.id, AccountID: 1, Date: "2024-03-01", Value: 9.99}
			wait(t, svc.SetBooking(context.Background(), "Saving", b, nil))
			req := <-reqs

			if req.function != "setBooking" {
				t.Errorf("function: got %q", req.function)
			}
			if got := req.form.Get("oBooking[iAccountId]"); got != "1" {
				t.Errorf("oBooking[iAccountId]: got %q", got)
			}
			if got := req.form.Get("oBooking[fBookingValue]"); got != "9.99" {
				t.Errorf("oBooking[fBookingValue]: got %q", got)
			}
			if req.form.Has("oBooking[iBookingId]") != tc.present {
				t.Fatalf("iBookingId present = %v, want %v", !tc.present, tc.present)
			}
			if got := req.form.Get("oBooking[iBookingId]"); got != tc.want {
				t.Errorf("iBookingId: got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestSetAdminUser_UserID(t *testing.T) {
	tests := []struct {
		name    string
		user    api.AdminUser
		present bool
	}{
		{name: "create", user: api.AdminUser{FirstName: "Ada", LastName: "Lovelace", LoginName: "ada"}},
		{name: "update", user: api.AdminUser{ID: 3, FirstName: "Ada", LastName: "Lovelace", LoginName: "ada"}, present: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv, reqs := newTestServer(t, respond(200, `{}`))
			svc := newTestService(srv, nil, nil)

			wait(t, svc.SetAdminUser(context.Background(), "Saving", tc.user, nil))
			req := <-reqs

			if req.function != "setAdminUser" {
				t.Errorf("function: got %q", req.function)
			}
			if got := req.form.Get("sLoginName"); got != "ada" {
				t.Errorf("sLoginName: got %q", got)
			}
			if req.form.Has("iUserId") != tc.present {
				t.Errorf("iUserId present = %v, want %v", req.form.Has("iUserId"), tc.present)
			}
		})
	}
}

func TestOperations_DeliverPayload(t *testing.T) {
	srv, _ := newTestServer(t, respond(200, `[{"iAccountId":"1","sAccountName":"Giro"}]`))
	svc := newTestService(srv, nil, nil)

	got := make(chan any, 1)
	wait(t, svc.GetUserAccounts(context.Background(), "Loading accounts", func(p any) { got <- p }))

	select {
	case p := <-got:
		rows, ok := p.([]any)
		if !ok || len(rows) != 1 {
			t.Fatalf("unexpected payload %#v", p)
		}
	default:
		t.Fatal("success callback not invoked before result delivery")
	}
}
