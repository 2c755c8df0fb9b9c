package httpapi

import (
	"errors"
	"io"
	"net/http"

	"github.com/nickk-eng/Serialboxd/internal/common"
	"github.com/nickk-eng/Serialboxd/internal/server/services"
)

type registerRequest struct {
	Nome  string `json:"nome"`
	Email string `json:"email"`
	Senha string `json:"senha"`
}

type registerResponse struct {
	Nome   string `json:"nome"`
	UserID int64  `json:"userId"`
}

func (a *API) register(w http.ResponseWriter, r *http.Request) error {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return err
	}
	if req.Nome == "" || req.Email == "" || req.Senha == "" {
		return badRequest("Todos os campos são obrigatórios.")
	}

	user, err := a.users.Register(r.Context(), req.Nome, req.Email, req.Senha)
	if err != nil {
		return err
	}

	writeJSON(w, http.StatusCreated, registerResponse{Nome: user.Username, UserID: user.ID})
	return nil
}

type loginRequest struct {
	Email string `json:"email"`
	Senha string `json:"senha"`
}

type loginResponse struct {
	Nome         string  `json:"nome"`
	Email        string  `json:"email"`
	AvatarURL    *string `json:"avatarUrl"`
	AccessToken  string  `json:"accessToken"`
	RefreshToken string  `json:"refreshToken"`
}

func (a *API) login(w http.ResponseWriter, r *http.Request) error {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return err
	}
	if req.Email == "" || req.Senha == "" {
		return badRequest("E-mail e senha são obrigatórios.")
	}

	user, pair, err := a.users.Login(r.Context(), req.Email, req.Senha)
	if err != nil {
		return err
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Nome:         user.Username,
		Email:        user.Email,
		AvatarURL:    user.AvatarURL,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
	return nil
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type tokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func (a *API) refresh(w http.ResponseWriter, r *http.Request) error {
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return err
	}
	if req.RefreshToken == "" {
		return &httpError{status: http.StatusUnauthorized, msg: "Refresh token não fornecido."}
	}

	pair, err := a.users.RefreshToken(r.Context(), req.RefreshToken)
	if err != nil {
		return err
	}

	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
	return nil
}

// logout never fails: a body that cannot be read counts as no token.
func (a *API) logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	_ = decodeJSON(w, r, &req)

	if !a.users.Logout(r.Context(), req.RefreshToken) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: "Logout bem-sucedido."})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (a *API) changePassword(w http.ResponseWriter, r *http.Request) error {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		return common.ErrorUnauthorized
	}

	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return err
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		return badRequest("Todos os campos são obrigatórios.")
	}
	if len(req.NewPassword) < common.MinPasswordLength {
		return badRequest("A nova senha deve ter no mínimo 8 caracteres.")
	}

	if err := a.users.ChangePassword(r.Context(), claims.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		return err
	}

	writeJSON(w, http.StatusOK, messageBody{Message: "Senha alterada com sucesso!"})
	return nil
}

type avatarResponse struct {
	Message   string `json:"message"`
	AvatarURL string `json:"avatarUrl"`
}

// multipartOverhead leaves room for boundaries and headers around the file.
const multipartOverhead = 64 << 10

func (a *API) uploadAvatar(w http.ResponseWriter, r *http.Request) error {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		return common.ErrorUnauthorized
	}

	r.Body = http.MaxBytesReader(w, r.Body, services.MaxAvatarSize+multipartOverhead)
	if err := r.ParseMultipartForm(services.MaxAvatarSize); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return badRequest("O arquivo excede o limite de 5 MB.")
		}
		return badRequest("Nenhum arquivo foi enviado.")
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	f, _, err := r.FormFile("avatar")
	if err != nil {
		return badRequest("Nenhum arquivo foi enviado.")
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, services.MaxAvatarSize+1))
	if err != nil {
		return err
	}

	url, err := a.users.UpdateAvatar(r.Context(), claims.UserID, data)
	if err != nil {
		if errors.Is(err, common.ErrValidation) {
			return badRequest("Apenas imagens JPEG, PNG, GIF ou WEBP de até 5 MB são aceitas.")
		}
		return err
	}

	writeJSON(w, http.StatusOK, avatarResponse{Message: "Avatar atualizado com sucesso!", AvatarURL: url})
	return nil
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

func (a *API) forgotPassword(w http.ResponseWriter, r *http.Request) error {
	var req forgotPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return err
	}
	if req.Email == "" {
		return badRequest("O e-mail é obrigatório.")
	}

	if err := a.users.ForgotPassword(r.Context(), req.Email); err != nil {
		return err
	}

	writeJSON(w, http.StatusOK, messageBody{Message: "Se o e-mail estiver cadastrado, um link será enviado."})
	return nil
}

type resetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (a *API) resetPassword(w http.ResponseWriter, r *http.Request) error {
	var req resetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return err
	}
	if req.Token == "" || req.Password == "" {
		return badRequest("Token e nova senha são obrigatórios.")
	}
	if len(req.Password) < common.MinPasswordLength {
		return badRequest("A nova senha deve ter no mínimo 8 caracteres.")
	}

	if err := a.users.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		return err
	}

	writeJSON(w, http.StatusOK, messageBody{Message: "Senha redefinida com sucesso!"})
	return nil
}
