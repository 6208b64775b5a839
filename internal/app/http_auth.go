package app

import (
	"net/http"

	"journal/api/internal/authpw"
	"journal/api/internal/envelope"
)

// Auth handlers for email/password authentication

func (s *HTTPServer) handleAuthSignUp(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		DisplayName string `json:"displayName"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, err, "Sign up failed")
		return
	}

	resp, err := s.service.SignUp(r.Context(), authpw.SignUpRequest{
		Email:       body.Email,
		Password:    body.Password,
		DisplayName: body.DisplayName,
	})
	if err != nil {
		s.fail(w, r, err, "Sign up failed")
		return
	}

	data := map[string]any{"userId": resp.UserID}
	message := "Please check your email to verify your account"
	// Without SMTP the token is handed back so local setups can finish sign-up.
	if !s.service.SMTPConfigured() {
		data["devVerificationToken"] = resp.VerificationToken
		message = "Account created. Verify your email to continue."
	}
	envelope.Write(w, envelope.OK(data).WithMessage(message).WithStatus(http.StatusCreated))
}

func (s *HTTPServer) handleAuthSignIn(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, err, "Sign in failed")
		return
	}

	session, user, err := s.service.SignIn(r.Context(), authpw.SignInRequest{
		Email:    body.Email,
		Password: body.Password,
	})
	if err != nil {
		s.fail(w, r, err, "Sign in failed")
		return
	}

	s.setAccessCookie(w, session)
	envelope.Write(w, envelope.OK(tokenPayload(session, user)))
}

func tokenPayload(session Session, user any) map[string]any {
	payload := map[string]any{
		"accessToken":  session.Token,
		"refreshToken": session.RefreshToken,
		"expiresAt":    session.ExpiresAt.Unix(),
	}
	if user != nil {
		payload["user"] = user
	}
	return payload
}

func (s *HTTPServer) handleAuthVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token string `json:"token"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, err, "Verification failed")
		return
	}
	if err := s.service.VerifyEmail(r.Context(), body.Token); err != nil {
		s.fail(w, r, err, "Verification failed")
		return
	}
	envelope.Write(w, envelope.Message("Email verified successfully"))
}

func (s *HTTPServer) handleAuthRequestReset(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, err, "Password reset failed")
		return
	}

	token, err := s.service.RequestPasswordReset(r.Context(), body.Email)
	if err != nil {
		s.fail(w, r, err, "Password reset failed")
		return
	}

	result := envelope.Message("If an account exists, a reset email has been sent")
	if !s.service.SMTPConfigured() && token != "" {
		result = envelope.OK(map[string]any{"devResetToken": token}).
			WithMessage("If an account exists, a reset email has been sent")
	}
	envelope.Write(w, result)
}

func (s *HTTPServer) handleAuthResetPassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Token       string `json:"token"`
		NewPassword string `json:"newPassword"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, err, "Password reset failed")
		return
	}

	if err := s.service.ResetPassword(r.Context(), authpw.ResetPasswordRequest{
		Token:       body.Token,
		NewPassword: body.NewPassword,
	}); err != nil {
		s.fail(w, r, err, "Password reset failed")
		return
	}
	envelope.Write(w, envelope.Message("Password reset successfully"))
}

func (s *HTTPServer) handleAuthRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, err, "Refresh failed")
		return
	}

	session, err := s.service.Refresh(r.Context(), body.RefreshToken)
	if err != nil {
		s.fail(w, r, err, "Refresh failed")
		return
	}
	s.setAccessCookie(w, session)
	envelope.Write(w, envelope.OK(tokenPayload(session, nil)))
}

// handleAuthSignOut always succeeds; an unknown or expired session has
// nothing left to revoke.
func (s *HTTPServer) handleAuthSignOut(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, err, "Sign out failed")
		return
	}

	var session Session
	if token := requestToken(r); token != "" {
		if current, err := s.service.SessionFromToken(r.Context(), token); err == nil {
			session = current
		}
	}
	s.service.Logout(r.Context(), session, body.RefreshToken)
	s.clearAccessCookie(w)
	envelope.Write(w, envelope.Message("Signed out"))
}
