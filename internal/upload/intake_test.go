package upload

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidvault/internal/db/dbtest"
	"vidvault/internal/domain"
	"vidvault/internal/storage"
)

func request(ownerID uint) Request {
	body := "fake-mp4-bytes"
	return Request{
		OwnerID:      ownerID,
		Title:        "Demo",
		File:         strings.NewReader(body),
		Size:         int64(len(body)),
		OriginalName: "demo.mp4",
	}
}

func TestValidate_Order(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *Request)
		want   error
	}{
		{"missing title beats missing file", func(r *Request) { r.Title = "  "; r.File = nil }, ErrMissingTitle},
		{"missing file", func(r *Request) { r.File = nil }, ErrMissingFile},
		{"empty file", func(r *Request) { r.Size = 0 }, ErrMissingFile},
		{"unsupported type beats price checks", func(r *Request) { r.OriginalName = "notes.txt"; r.Price = "1.00" }, ErrUnsupportedType},
		{"no extension", func(r *Request) { r.OriginalName = "demo" }, ErrUnsupportedType},
		{"paid without price", func(r *Request) { r.IsPaidUnlock = true }, ErrMissingPrice},
		{"paid with garbage price", func(r *Request) { r.IsPaidUnlock = true; r.Price = "ten" }, ErrInvalidPrice},
		{"paid below floor", func(r *Request) { r.IsPaidUnlock = true; r.Price = "0.10" }, ErrPriceTooLow},
		{"price without paid flag", func(r *Request) { r.Price = "5.00" }, ErrPriceWithoutPaidFlag},
		{"bad visibility", func(r *Request) { r.Visibility = "friends" }, ErrInvalidVisibility},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := request(1)
			tt.mutate(&req)
			_, err := validate(req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestValidate_Accepts(t *testing.T) {
	t.Run("price at the floor", func(t *testing.T) {
		req := request(1)
		req.IsPaidUnlock = true
		req.Price = "0.50"
		v, err := validate(req)
		require.NoError(t, err)
		assert.Equal(t, "0.5", v.price.Decimal.String())
	})

	t.Run("defaults to private", func(t *testing.T) {
		v, err := validate(request(1))
		require.NoError(t, err)
		assert.Equal(t, domain.VisibilityPrivate, v.visibility)
		assert.False(t, v.price.Valid)
	})

	t.Run("extension is case insensitive", func(t *testing.T) {
		req := request(1)
		req.OriginalName = "Holiday Clip.WEBM"
		v, err := validate(req)
		require.NoError(t, err)
		assert.Equal(t, "webm", v.ext)
		assert.Equal(t, "Holiday_Clip.WEBM", v.filename)
	})

	t.Run("blank price on free video is absent", func(t *testing.T) {
		req := request(1)
		req.Price = "   "
		_, err := validate(req)
		assert.NoError(t, err)
	})
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "passwd", SanitizeFilename("../../etc/passwd"))
	assert.Equal(t, "clip.mp4", SanitizeFilename(`C:\Users\me\clip.mp4`))
	assert.Equal(t, "my_video_.mov", SanitizeFilename("my video!.mov"))
}

func newIntake(t *testing.T) (*Intake, string) {
	gdb := dbtest.Open(t)
	root := t.TempDir()
	store, err := storage.NewLocalStorage(root)
	require.NoError(t, err)
	return NewIntake(gdb, store), root
}

func TestIngest_Success(t *testing.T) {
	in, _ := newIntake(t)
	owner := dbtest.CreateUser(t, in.db, "alice")

	req := request(owner.ID)
	req.Visibility = "public"
	req.IsPaidUnlock = true
	req.Price = "19.99"
	req.Description = "first upload"

	video, err := in.Ingest(context.Background(), req)
	require.NoError(t, err)

	var stored domain.Video
	require.NoError(t, in.db.First(&stored, video.ID).Error)
	assert.Equal(t, "Demo", stored.Title)
	assert.Equal(t, owner.ID, stored.UserID)
	assert.Equal(t, domain.VisibilityPublic, stored.Visibility)
	assert.True(t, stored.IsPaidUnlock)
	assert.True(t, stored.Price.Valid)
	assert.Equal(t, "19.99", stored.Price.Decimal.StringFixed(2))
	assert.Equal(t, int64(len("fake-mp4-bytes")), stored.TotalSize)
	require.NotNil(t, stored.Description)
	assert.Equal(t, "first upload", *stored.Description)
	assert.True(t, strings.HasPrefix(stored.FilePath, "users/"))

	obj, err := in.store.Open(context.Background(), stored.FilePath)
	require.NoError(t, err)
	defer obj.Close()
	data, _ := io.ReadAll(obj)
	assert.Equal(t, "fake-mp4-bytes", string(data))
}

func TestIngest_DefaultsToPrivateFree(t *testing.T) {
	in, _ := newIntake(t)
	owner := dbtest.CreateUser(t, in.db, "alice")

	video, err := in.Ingest(context.Background(), request(owner.ID))
	require.NoError(t, err)
	assert.Equal(t, domain.VisibilityPrivate, video.Visibility)
	assert.False(t, video.IsPaidUnlock)
	assert.False(t, video.Price.Valid)
}

func TestIngest_ValidationHasNoSideEffects(t *testing.T) {
	in, root := newIntake(t)

	req := request(1)
	req.IsPaidUnlock = true
	req.Price = "0.10"
	_, err := in.Ingest(context.Background(), req)
	assert.ErrorIs(t, err, ErrPriceTooLow)

	var count int64
	require.NoError(t, in.db.Model(&domain.Video{}).Count(&count).Error)
	assert.Zero(t, count)
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestIngest_RemovesFileWhenInsertFails(t *testing.T) {
	in, root := newIntake(t)
	require.NoError(t, in.db.Migrator().DropTable(&domain.Video{}))

	_, err := in.Ingest(context.Background(), request(1))
	require.Error(t, err)

	var files []string
	require.NoError(t, filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			files = append(files, p)
		}
		return err
	}))
	assert.Empty(t, files)
}
