package businessflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/amirphl/token-registry/app/dto"
	"github.com/amirphl/token-registry/database"
	"github.com/amirphl/token-registry/models"
	"github.com/amirphl/token-registry/repository"
	"github.com/amirphl/token-registry/utils"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// TokenFlow is the registry API: list, lookup by creator, create and export
type TokenFlow interface {
	ListAll(ctx context.Context, metadata *ClientMetadata) ([]dto.TokenDTO, error)
	ListByCreator(ctx context.Context, creator string, metadata *ClientMetadata) ([]dto.TokenDTO, error)
	Create(ctx context.Context, req *dto.CreateTokenRequest, metadata *ClientMetadata) (*dto.TokenDTO, error)
	ExportTokens(ctx context.Context, metadata *ClientMetadata) (string, []byte, error)
}

// TokenFlowImpl implements TokenFlow
type TokenFlowImpl struct {
	tokenRepo   repository.TokenRepository
	cache       tokenCache
	cachePrefix string
	cacheTTL    time.Duration
}

// NewTokenFlow creates the registry flow. rc may be nil, in which case every read goes to the store.
func NewTokenFlow(tokenRepo repository.TokenRepository, rc *redis.Client, cachePrefix string, cacheTTL time.Duration) TokenFlow {
	var cache tokenCache
	if rc != nil {
		cache = newRedisTokenCache(rc, cachePrefix)
	}
	return newTokenFlow(tokenRepo, cache, cachePrefix, cacheTTL)
}

func newTokenFlow(tokenRepo repository.TokenRepository, cache tokenCache, cachePrefix string, cacheTTL time.Duration) *TokenFlowImpl {
	return &TokenFlowImpl{
		tokenRepo:   tokenRepo,
		cache:       cache,
		cachePrefix: cachePrefix,
		cacheTTL:    cacheTTL,
	}
}

func (f *TokenFlowImpl) ListAll(ctx context.Context, metadata *ClientMetadata) ([]dto.TokenDTO, error) {
	key, cacheable := f.cacheKey(ctx, "all")
	if cached, ok := f.readCache(ctx, key, cacheable); ok {
		return cached, nil
	}

	tokens, err := f.tokenRepo.ListAll(ctx)
	if err != nil {
		logStoreError("fetching tokens", metadata, err)
		return nil, NewBusinessError(CodeQueryFailed, "Failed to fetch tokens", ErrQueryFailed)
	}

	result := ToTokenDTOs(tokens)
	f.writeCache(ctx, key, cacheable, result)
	return result, nil
}

func (f *TokenFlowImpl) ListByCreator(ctx context.Context, creator string, metadata *ClientMetadata) ([]dto.TokenDTO, error) {
	creator = strings.TrimSpace(creator)
	if creator == "" {
		return nil, NewBusinessError(CodeValidation, "Creator is required", ErrCreatorRequired)
	}
	if utf8.RuneCountInString(creator) > utils.TokenCreatorMaxLength {
		return nil, NewBusinessErrorf(CodeValidation, "Creator must be at most %d characters", ErrCreatorTooLong, utils.TokenCreatorMaxLength)
	}

	// creator lookups are case-insensitive, so is the key
	key, cacheable := f.cacheKey(ctx, "creator:"+strings.ToLower(creator))
	if cached, ok := f.readCache(ctx, key, cacheable); ok {
		return cached, nil
	}

	tokens, err := f.tokenRepo.ListByCreator(ctx, creator)
	if err != nil {
		logStoreError(fmt.Sprintf("fetching tokens by creator %q", creator), metadata, err)
		return nil, NewBusinessError(CodeQueryFailed, "Failed to fetch tokens by creator", ErrQueryFailed)
	}

	result := ToTokenDTOs(tokens)
	f.writeCache(ctx, key, cacheable, result)
	return result, nil
}

func (f *TokenFlowImpl) Create(ctx context.Context, req *dto.CreateTokenRequest, metadata *ClientMetadata) (*dto.TokenDTO, error) {
	if req == nil {
		return nil, NewBusinessError(CodeValidation, "Request is required", ErrNameRequired)
	}

	newToken, err := normalizeNewToken(*req)
	if err != nil {
		return nil, err
	}

	token, err := f.tokenRepo.Create(ctx, newToken)
	if err != nil {
		if repository.IsUniqueViolation(err) {
			tokenCreates.WithLabelValues(CodeDuplicateSymbol).Inc()
			return nil, NewBusinessError(CodeDuplicateSymbol, "Token symbol already exists", ErrDuplicateSymbol)
		}
		logStoreError("adding token "+newToken.Symbol, metadata, err)
		tokenCreates.WithLabelValues(CodeCreateFailed).Inc()
		return nil, NewBusinessError(CodeCreateFailed, "Failed to add token", ErrCreateFailed)
	}
	tokenCreates.WithLabelValues("created").Inc()

	f.invalidateCache(ctx)

	result := ToTokenDTO(*token)
	return &result, nil
}

func (f *TokenFlowImpl) ExportTokens(ctx context.Context, metadata *ClientMetadata) (string, []byte, error) {
	tokens, err := f.tokenRepo.ListAll(ctx)
	if err != nil {
		logStoreError("fetching tokens for export", metadata, err)
		return "", nil, NewBusinessError(CodeQueryFailed, "Failed to fetch tokens", ErrQueryFailed)
	}

	xl := excelize.NewFile()
	defer func() { _ = xl.Close() }()

	const sheet = "tokens"
	xl.SetSheetName(xl.GetSheetName(0), sheet)

	header := []string{"id", "name", "symbol", "total_supply", "creator", "created_at"}
	if err := xl.SetSheetRow(sheet, "A1", &header); err != nil {
		return "", nil, NewBusinessError(CodeExportFailed, "Failed to write Excel file", errors.Join(ErrExportFailed, err))
	}

	// Every cell is written as text; a numeric cell would round total_supply to 15 significant digits
	for i, t := range ToTokenDTOs(tokens) {
		record := []string{t.ID, t.Name, t.Symbol, t.TotalSupply, t.Creator, t.CreatedAt}
		cellRef, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return "", nil, NewBusinessError(CodeExportFailed, "Failed to write Excel file", errors.Join(ErrExportFailed, err))
		}
		if err := xl.SetSheetRow(sheet, cellRef, &record); err != nil {
			return "", nil, NewBusinessError(CodeExportFailed, "Failed to write Excel file", errors.Join(ErrExportFailed, err))
		}
	}

	buf, err := xl.WriteToBuffer()
	if err != nil {
		return "", nil, NewBusinessError(CodeExportFailed, "Failed to write Excel file", errors.Join(ErrExportFailed, err))
	}

	filename := fmt.Sprintf("tokens_%s.xlsx", utils.UTCNow().Format("20060102T150405Z"))
	return filename, buf.Bytes(), nil
}

// normalizeNewToken trims every field, upper-cases the symbol and canonicalizes the supply
func normalizeNewToken(req dto.CreateTokenRequest) (models.NewToken, error) {
	name := strings.TrimSpace(req.Name)
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	creator := strings.TrimSpace(req.Creator)

	switch {
	case name == "":
		return models.NewToken{}, NewBusinessError(CodeValidation, "Name is required", ErrNameRequired)
	case symbol == "":
		return models.NewToken{}, NewBusinessError(CodeValidation, "Symbol is required", ErrSymbolRequired)
	case creator == "":
		return models.NewToken{}, NewBusinessError(CodeValidation, "Creator is required", ErrCreatorRequired)
	}

	if utf8.RuneCountInString(name) > utils.TokenNameMaxLength {
		return models.NewToken{}, NewBusinessErrorf(CodeValidation, "Name must be at most %d characters", ErrNameTooLong, utils.TokenNameMaxLength)
	}
	if utf8.RuneCountInString(symbol) > utils.TokenSymbolMaxLength {
		return models.NewToken{}, NewBusinessErrorf(CodeValidation, "Symbol must be at most %d characters", ErrSymbolTooLong, utils.TokenSymbolMaxLength)
	}
	if utf8.RuneCountInString(creator) > utils.TokenCreatorMaxLength {
		return models.NewToken{}, NewBusinessErrorf(CodeValidation, "Creator must be at most %d characters", ErrCreatorTooLong, utils.TokenCreatorMaxLength)
	}

	supply, err := CanonicalTotalSupply(req.TotalSupply)
	if err != nil {
		return models.NewToken{}, err
	}

	return models.NewToken{
		Name:        name,
		Symbol:      symbol,
		TotalSupply: supply,
		Creator:     creator,
	}, nil
}

// CanonicalTotalSupply validates a decimal integer string and strips leading zeros.
// The value is parsed as an arbitrary precision decimal and never passes through a float.
func CanonicalTotalSupply(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", NewBusinessError(CodeValidation, "Total supply is required", ErrTotalSupplyRequired)
	}
	if !IsUnsignedIntegerString(s) {
		return "", NewBusinessError(CodeValidation, "Total supply must be a non-negative integer", ErrInvalidTotalSupply)
	}

	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() || !d.IsInteger() {
		return "", NewBusinessError(CodeValidation, "Total supply must be a non-negative integer", ErrInvalidTotalSupply)
	}

	canonical := d.String()
	if len(canonical) > utils.TotalSupplyMaxDigits {
		return "", NewBusinessErrorf(CodeValidation, "Total supply must have at most %d digits", ErrTotalSupplyTooLarge, utils.TotalSupplyMaxDigits)
	}
	return canonical, nil
}

// IsUnsignedIntegerString reports whether s is a non-empty run of ASCII digits
func IsUnsignedIntegerString(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// logStoreError logs the raw store failure before it is translated for the caller
func logStoreError(action string, metadata *ClientMetadata, err error) {
	if errors.Is(err, database.ErrConnectionUnavailable) {
		log.Printf("Error %s (%s): no database connection available: %v", action, metadata, err)
		return
	}
	log.Printf("Error %s (%s): %v", action, metadata, err)
}

// cacheKey scopes a list key by the current generation. ok is false when there is no
// cache or the generation cannot be read, in which case the cache is skipped entirely.
func (f *TokenFlowImpl) cacheKey(ctx context.Context, list string) (string, bool) {
	if f.cache == nil {
		return "", false
	}
	gen, err := f.cache.Generation(ctx)
	if err != nil {
		log.Printf("Warning: token cache generation unavailable: %v", err)
		return "", false
	}
	return f.cachePrefix + "tokens:" + strconv.FormatInt(gen, 10) + ":" + list, true
}

// readCache never fails the caller; any cache problem is a miss
func (f *TokenFlowImpl) readCache(ctx context.Context, key string, cacheable bool) ([]dto.TokenDTO, bool) {
	if !cacheable {
		return nil, false
	}
	bs, err := f.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, errCacheMiss) {
			log.Printf("Warning: token cache read failed for %s: %v", key, err)
		}
		return nil, false
	}
	var tokens []dto.TokenDTO
	if err := json.Unmarshal(bs, &tokens); err != nil {
		log.Printf("Warning: token cache entry %s is corrupt: %v", key, err)
		return nil, false
	}
	return tokens, true
}

// writeCache stores under the generation read before the query; if a create bumped it
// meanwhile, the entry is unreachable and simply expires
func (f *TokenFlowImpl) writeCache(ctx context.Context, key string, cacheable bool, tokens []dto.TokenDTO) {
	if !cacheable {
		return
	}
	bs, err := json.Marshal(tokens)
	if err != nil {
		return
	}
	if err := f.cache.Set(ctx, key, bs, f.cacheTTL); err != nil {
		log.Printf("Warning: token cache write failed for %s: %v", key, err)
	}
}

func (f *TokenFlowImpl) invalidateCache(ctx context.Context) {
	if f.cache == nil {
		return
	}
	if err := f.cache.Bump(ctx); err != nil {
		log.Printf("Warning: token cache invalidation failed: %v", err)
	}
}
