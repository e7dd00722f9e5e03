package service

import (
	"context"
	"errors"

	"github.com/Rifqin-11/PosyanduKlitikan/internal/backend"
	"github.com/Rifqin-11/PosyanduKlitikan/internal/domain"
	"github.com/Rifqin-11/PosyanduKlitikan/internal/repository"
)

var (
	// ErrUsernameNotFound: the login handle has no entry in the user directory.
	ErrUsernameNotFound = errors.New("username not found")
	// ErrSubmitting: a submission of the same form is still in flight.
	ErrSubmitting = errors.New("submission already in progress")
	// ErrNotSignedIn: the action needs a signed-in user.
	ErrNotSignedIn = errors.New("not signed in")
	// ErrNothingToExport: the filtered participant set is empty.
	ErrNothingToExport = errors.New("no participants to export")
)

// 用户可见文案
const (
	MsgUsernameNotFound = "Username tidak ditemukan."
	MsgUnexpected       = "Terjadi kesalahan saat memproses permintaan Anda."
	MsgNotSignedIn      = "Silakan masuk terlebih dahulu."
	MsgSubmitting       = "Permintaan sedang diproses."
	MsgNothingToExport  = "Tidak ada data peserta untuk diekspor."
	MsgNotFound         = "Data peserta tidak ditemukan."
	MsgInvalidInput     = "Data yang dimasukkan tidak valid."

	MsgSignedIn      = "Berhasil masuk."
	MsgSignUpSent    = "Silakan periksa email Anda untuk tautan konfirmasi."
	MsgResetLinkSent = "Link reset kata sandi dikirim ke email."
	MsgSignedOut     = "Berhasil keluar."

	MsgCreated      = "Peserta berhasil ditambahkan"
	MsgUpdated      = "Data peserta berhasil diperbarui"
	MsgDeleted      = "Peserta berhasil dihapus"
	MsgCreateFailed = "Gagal menambahkan peserta"
	MsgUpdateFailed = "Gagal memperbarui peserta"
	MsgDeleteFailed = "Gagal menghapus peserta"
	MsgLoadFailed   = "Gagal memuat data peserta"
	MsgSignOutFail  = "Gagal keluar dari akun"
)

// UserMessage converts any error of an action into the message shown to the
// user. Backend messages are shown as the backend wrote them; anything
// unrecognised gets the generic message.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var verrs domain.ValidationErrors
	var be *backend.Error
	switch {
	case errors.Is(err, ErrUsernameNotFound):
		return MsgUsernameNotFound
	case errors.Is(err, ErrSubmitting):
		return MsgSubmitting
	case errors.Is(err, ErrNotSignedIn):
		return MsgNotSignedIn
	case errors.Is(err, ErrNothingToExport):
		return MsgNothingToExport
	case errors.Is(err, repository.ErrParticipantNotFound):
		return MsgNotFound
	case errors.As(err, &verrs):
		return MsgInvalidInput
	case errors.As(err, &be) && be.Message != "":
		return be.Message
	default:
		return MsgUnexpected
	}
}

// ActionMessage is UserMessage for record actions: failures of the
// collaborator get the action's own message (fallback) instead of the generic one.
func ActionMessage(err error, fallback string) string {
	if err == nil {
		return ""
	}
	var be *backend.Error
	if errors.As(err, &be) || errors.Is(err, context.DeadlineExceeded) {
		return fallback
	}
	msg := UserMessage(err)
	if msg == MsgUnexpected {
		return fallback
	}
	return msg
}
