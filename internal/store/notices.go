package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"sjsage522/bidnoticeworker/internal/models"
	apperrors "sjsage522/bidnoticeworker/pkg/errors"
)

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = errors.New("store: not found")

// column binds a bid_notices column to the model field it stores
type column struct {
	name  string
	field func(n *models.BidNotice) any
}

// dataColumns are overwritten on every sighting of a notice. Classification,
// detail content and created_at are written once on insert.
var dataColumns = []column{
	{"bid_notice_ord", func(n *models.BidNotice) any { return &n.BidNoticeOrd }},
	{"bid_notice_name", func(n *models.BidNotice) any { return &n.BidNoticeName }},
	{"re_notice_yn", func(n *models.BidNotice) any { return &n.ReNoticeYN }},
	{"rgst_ty_nm", func(n *models.BidNotice) any { return &n.RegistrationTypeName }},
	{"ntce_kind_nm", func(n *models.BidNotice) any { return &n.NoticeKindName }},
	{"intrbid_yn", func(n *models.BidNotice) any { return &n.InternationalBidYN }},
	{"bid_notice_dt", func(n *models.BidNotice) any { return &n.NoticeDate }},
	{"ref_no", func(n *models.BidNotice) any { return &n.RefNo }},
	{"ntce_instt_cd", func(n *models.BidNotice) any { return &n.NoticeInstitutionCode }},
	{"ntce_instt_nm", func(n *models.BidNotice) any { return &n.NoticeInstitutionName }},
	{"dminstt_cd", func(n *models.BidNotice) any { return &n.DemandInstitutionCode }},
	{"dminstt_nm", func(n *models.BidNotice) any { return &n.DemandInstitutionName }},
	{"bid_methd_nm", func(n *models.BidNotice) any { return &n.BidMethodName }},
	{"cntrct_cncls_mthd_nm", func(n *models.BidNotice) any { return &n.ContractMethodName }},
	{"ntce_instt_ofcl_nm", func(n *models.BidNotice) any { return &n.OfficerName }},
	{"ntce_instt_ofcl_tel_no", func(n *models.BidNotice) any { return &n.OfficerTel }},
	{"ntce_instt_ofcl_email_adrs", func(n *models.BidNotice) any { return &n.OfficerEmail }},
	{"exctv_nm", func(n *models.BidNotice) any { return &n.ExecutorName }},
	{"dminstt_ofcl_email_adrs", func(n *models.BidNotice) any { return &n.DemandOfficerEmail }},
	{"bid_qlfct_rgst_dt", func(n *models.BidNotice) any { return &n.QualificationRegDeadline }},
	{"cmmn_spldmd_agrmnt_rcptdoc_methd", func(n *models.BidNotice) any { return &n.JointSupplyReceiptMethod }},
	{"cmmn_spldmd_agrmnt_clse_dt", func(n *models.BidNotice) any { return &n.JointSupplyDeadline }},
	{"cmmn_spldmd_corp_rgn_lmt_yn", func(n *models.BidNotice) any { return &n.JointSupplyRegionLimitYN }},
	{"cmmn_spldmd_methd_cd", func(n *models.BidNotice) any { return &n.JointSupplyMethodCode }},
	{"cmmn_spldmd_methd_nm", func(n *models.BidNotice) any { return &n.JointSupplyMethodName }},
	{"bid_begin_dt", func(n *models.BidNotice) any { return &n.BidBeginDate }},
	{"bid_clse_dt", func(n *models.BidNotice) any { return &n.BidCloseDate }},
	{"openg_dt", func(n *models.BidNotice) any { return &n.OpeningDate }},
	{"openg_plce", func(n *models.BidNotice) any { return &n.OpeningPlace }},
	{"rbid_openg_dt", func(n *models.BidNotice) any { return &n.RebidOpeningDate }},
	{"dcmtg_oprtn_dt", func(n *models.BidNotice) any { return &n.BriefingDate }},
	{"dcmtg_oprtn_plce", func(n *models.BidNotice) any { return &n.BriefingPlace }},
	{"spec_documents", func(n *models.BidNotice) any { return &n.SpecDocuments }},
	{"std_ntce_doc_url", func(n *models.BidNotice) any { return &n.StdNoticeDocURL }},
	{"bid_ntce_dtl_url", func(n *models.BidNotice) any { return &n.DetailURL }},
	{"bid_ntce_url", func(n *models.BidNotice) any { return &n.NoticeURL }},
	{"rbid_permsn_yn", func(n *models.BidNotice) any { return &n.RebidPermitYN }},
	{"pq_appl_doc_rcpt_mthd_nm", func(n *models.BidNotice) any { return &n.PQApplyReceiptMethod }},
	{"pq_appl_doc_rcpt_dt", func(n *models.BidNotice) any { return &n.PQApplyReceiptDate }},
	{"tp_eval_appl_mthd_nm", func(n *models.BidNotice) any { return &n.TPEvalApplyMethod }},
	{"tp_eval_appl_clse_dt", func(n *models.BidNotice) any { return &n.TPEvalApplyDeadline }},
	{"arslt_appl_doc_rcpt_mthd_nm", func(n *models.BidNotice) any { return &n.PerformanceDocReceiptMethod }},
	{"arslt_reqstdoc_rcpt_dt", func(n *models.BidNotice) any { return &n.PerformanceDocReceiptDate }},
	{"jntcontrct_duty_rgn_nms", func(n *models.BidNotice) any { return &n.JointContractRegions }},
	{"rgn_duty_jntcontrct_rt", func(n *models.BidNotice) any { return &n.RegionJointContractRate }},
	{"rgn_lmt_bid_locplc_jdgm_bss_cd", func(n *models.BidNotice) any { return &n.RegionLimitBasisCode }},
	{"rgn_lmt_bid_locplc_jdgm_bss_nm", func(n *models.BidNotice) any { return &n.RegionLimitBasisName }},
	{"dtls_bid_yn", func(n *models.BidNotice) any { return &n.DetailBidYN }},
	{"bid_prtcpt_lmt_yn", func(n *models.BidNotice) any { return &n.BidParticipationLimitYN }},
	{"bid_prtcpt_fee_paymnt_yn", func(n *models.BidNotice) any { return &n.ParticipationFeeYN }},
	{"bid_grntymny_paymnt_yn", func(n *models.BidNotice) any { return &n.BidBondYN }},
	{"ppsw_gnrl_srvce_yn", func(n *models.BidNotice) any { return &n.GeneralServiceYN }},
	{"prdct_clsfc_lmt_yn", func(n *models.BidNotice) any { return &n.ProductClassLimitYN }},
	{"mnfct_yn", func(n *models.BidNotice) any { return &n.ManufactureYN }},
	{"brffc_bidprc_permsn_yn", func(n *models.BidNotice) any { return &n.BranchBidPermitYN }},
	{"dsgnt_cmpt_yn", func(n *models.BidNotice) any { return &n.DesignatedCompetitionYN }},
	{"arslt_cmpt_yn", func(n *models.BidNotice) any { return &n.PerformanceCompetitionYN }},
	{"pq_eval_yn", func(n *models.BidNotice) any { return &n.PQEvalYN }},
	{"tp_eval_yn", func(n *models.BidNotice) any { return &n.TPEvalYN }},
	{"ntce_dscrpt_yn", func(n *models.BidNotice) any { return &n.NoticeDescriptionYN }},
	{"info_biz_yn", func(n *models.BidNotice) any { return &n.InfoBizYN }},
	{"indstryty_lmt_yn", func(n *models.BidNotice) any { return &n.IndustryLimitYN }},
	{"prearng_prce_dcsn_mthd_nm", func(n *models.BidNotice) any { return &n.PriceDecisionMethod }},
	{"rsrvtn_prce_re_mkng_mthd_nm", func(n *models.BidNotice) any { return &n.ReservePriceMethod }},
	{"tot_prdprc_num", func(n *models.BidNotice) any { return &n.TotalPrelimPriceCount }},
	{"drwt_prdprc_num", func(n *models.BidNotice) any { return &n.DrawnPrelimPriceCount }},
	{"asign_bdgt_amt", func(n *models.BidNotice) any { return &n.AssignedBudget }},
	{"presmpt_prce", func(n *models.BidNotice) any { return &n.EstimatedPrice }},
	{"bid_prtcpt_fee", func(n *models.BidNotice) any { return &n.ParticipationFee }},
	{"vat", func(n *models.BidNotice) any { return &n.VAT }},
	{"induty_vat", func(n *models.BidNotice) any { return &n.IndustryVAT }},
	{"sucsfbid_lwlt_rate", func(n *models.BidNotice) any { return &n.SuccessfulBidLowerRate }},
	{"sucsfbid_mthd_cd", func(n *models.BidNotice) any { return &n.SuccessfulBidMethodCode }},
	{"sucsfbid_mthd_nm", func(n *models.BidNotice) any { return &n.SuccessfulBidMethodName }},
	{"crdtr_nm", func(n *models.BidNotice) any { return &n.CreditorName }},
	{"srvce_div_nm", func(n *models.BidNotice) any { return &n.ServiceDivisionName }},
	{"purchs_obj_prdct_list", func(n *models.BidNotice) any { return &n.PurchaseProductList }},
	{"unty_ntce_no", func(n *models.BidNotice) any { return &n.UnifiedNoticeNo }},
	{"order_plan_unty_no", func(n *models.BidNotice) any { return &n.OrderPlanNo }},
	{"bf_spec_rgst_no", func(n *models.BidNotice) any { return &n.PriorSpecRegNo }},
	{"chg_ntce_rsn", func(n *models.BidNotice) any { return &n.ChangeReason }},
	{"pub_prcrmnt_lrg_clsfc_nm", func(n *models.BidNotice) any { return &n.ProcurementLargeClass }},
	{"pub_prcrmnt_mid_clsfc_nm", func(n *models.BidNotice) any { return &n.ProcurementMidClass }},
	{"pub_prcrmnt_clsfc_no", func(n *models.BidNotice) any { return &n.ProcurementClassNo }},
	{"pub_prcrmnt_clsfc_nm", func(n *models.BidNotice) any { return &n.ProcurementClassName }},
	{"rgst_dt", func(n *models.BidNotice) any { return &n.RegisteredAt }},
	{"chg_dt", func(n *models.BidNotice) any { return &n.ChangedAt }},
	{"source", func(n *models.BidNotice) any { return &n.Source }},
}

// onceColumns are only written by the insert
var onceColumns = []column{
	{"content", func(n *models.BidNotice) any { return &n.Content }},
	{"attachments", func(n *models.BidNotice) any { return &n.Attachments }},
	{"category", func(n *models.BidNotice) any { return &n.Category }},
	{"keywords", func(n *models.BidNotice) any { return &n.Keywords }},
	{"score", func(n *models.BidNotice) any { return &n.Score }},
	{"is_processed", func(n *models.BidNotice) any { return &n.IsProcessed }},
	{"is_matched", func(n *models.BidNotice) any { return &n.IsMatched }},
	{"created_at", func(n *models.BidNotice) any { return &n.CreatedAt }},
	{"updated_at", func(n *models.BidNotice) any { return &n.UpdatedAt }},
}

var (
	insertNoticeSQL string
	updateNoticeSQL string
	selectNoticeSQL string
)

func init() {
	var names, sets []string
	for _, c := range dataColumns {
		names = append(names, c.name)
		sets = append(sets, c.name+" = ?")
	}
	for _, c := range onceColumns {
		names = append(names, c.name)
	}

	insertNoticeSQL = fmt.Sprintf(
		"INSERT INTO bid_notices (bid_notice_no, %s) VALUES (?%s) ON CONFLICT (bid_notice_no) DO NOTHING",
		strings.Join(names, ", "),
		strings.Repeat(", ?", len(names)),
	)
	updateNoticeSQL = fmt.Sprintf(
		"UPDATE bid_notices SET %s, updated_at = ? WHERE bid_notice_no = ?",
		strings.Join(sets, ", "),
	)
	selectNoticeSQL = fmt.Sprintf("SELECT id, bid_notice_no, %s FROM bid_notices", strings.Join(names, ", "))
}

// argOf dereferences a field pointer into a driver value. Nil pointers and
// nil slices become NULL; slices are stored as JSON.
func argOf(ptr any) (any, error) {
	switch p := ptr.(type) {
	case *string:
		return *p, nil
	case **string:
		if *p == nil {
			return nil, nil
		}
		return **p, nil
	case **time.Time:
		if *p == nil {
			return nil, nil
		}
		return (*p).UTC(), nil
	case *time.Time:
		return p.UTC(), nil
	case **int64:
		if *p == nil {
			return nil, nil
		}
		return **p, nil
	case **float64:
		if *p == nil {
			return nil, nil
		}
		return **p, nil
	case *float64:
		return *p, nil
	case *bool:
		return *p, nil
	case *[]string:
		if *p == nil {
			return nil, nil
		}
		return marshalJSON(*p)
	case *[]models.Attachment:
		if *p == nil {
			return nil, nil
		}
		return marshalJSON(*p)
	}
	return nil, fmt.Errorf("unsupported column type %T", ptr)
}

func marshalJSON(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// destOf returns the scan destination for a field pointer
func destOf(ptr any) any {
	switch ptr.(type) {
	case *[]string, *[]models.Attachment:
		return &jsonColumn{target: ptr}
	}
	return ptr
}

// jsonColumn scans a JSON text or JSONB value into target. NULL leaves the
// target untouched.
type jsonColumn struct {
	target any
}

func (j *jsonColumn) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		return nil
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("cannot scan %T into json column", src)
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, j.target)
}

func scanNotice(scan func(dest ...any) error) (*models.BidNotice, error) {
	n := &models.BidNotice{}
	dest := []any{&n.ID, &n.BidNoticeNo}
	for _, c := range dataColumns {
		dest = append(dest, destOf(c.field(n)))
	}
	for _, c := range onceColumns {
		dest = append(dest, destOf(c.field(n)))
	}
	if err := scan(dest...); err != nil {
		return nil, err
	}
	return n, nil
}

func argsOf(n *models.BidNotice, cols []column) ([]any, error) {
	args := make([]any, 0, len(cols))
	for _, c := range cols {
		v, err := argOf(c.field(n))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", c.name, err)
		}
		args = append(args, v)
	}
	return args, nil
}

// SaveBidNotice inserts the notice or, when its number already exists,
// overwrites the data columns. It reports whether a new row was created.
func (s *Store) SaveBidNotice(ctx context.Context, n *models.BidNotice) (bool, error) {
	if n == nil || !n.Valid() {
		return false, apperrors.NewValidation("store", "bid_notice_no and bid_notice_name are required")
	}
	if n.Source == "" {
		n.Source = models.SourceAPI
	}
	ts := now()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = ts
	}
	n.UpdatedAt = ts

	data, err := argsOf(n, dataColumns)
	if err != nil {
		return false, err
	}
	once, err := argsOf(n, onceColumns)
	if err != nil {
		return false, err
	}

	args := append([]any{n.BidNoticeNo}, data...)
	res, err := s.exec(ctx, insertNoticeSQL, append(args, once...)...)
	if err != nil {
		return false, apperrors.NewPersistence("bid_notices", "insert "+n.BidNoticeNo, err)
	}
	if inserted, _ := res.RowsAffected(); inserted > 0 {
		return true, nil
	}

	args = append(data, ts, n.BidNoticeNo)
	if _, err := s.exec(ctx, updateNoticeSQL, args...); err != nil {
		return false, apperrors.NewPersistence("bid_notices", "update "+n.BidNoticeNo, err)
	}
	return false, nil
}

// SaveBidNotices upserts each notice independently. A failing record is
// reported in Errors and does not stop the batch.
func (s *Store) SaveBidNotices(ctx context.Context, notices []*models.BidNotice) models.SaveResult {
	res := models.SaveResult{Errors: []string{}}
	for _, n := range notices {
		isNew, err := s.SaveBidNotice(ctx, n)
		if err != nil {
			no := ""
			if n != nil {
				no = n.BidNoticeNo
			}
			s.log.Error().Err(err).Str("notice", no).Msg("Failed to save notice")
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", no, err))
			continue
		}
		res.Saved++
		if isNew {
			res.NewCount++
			res.Inserted = append(res.Inserted, n)
		} else {
			res.UpdatedCount++
		}
	}

	s.log.Info().
		Int("saved", res.Saved).
		Int("new", res.NewCount).
		Int("updated", res.UpdatedCount).
		Int("errors", len(res.Errors)).
		Msg("Notices saved")
	return res
}

// GetBidNotice returns one notice by number
func (s *Store) GetBidNotice(ctx context.Context, noticeNo string) (*models.BidNotice, error) {
	n, err := scanNotice(s.queryRow(ctx, selectNoticeSQL+" WHERE bid_notice_no = ?", noticeNo).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("notice %s: %w", noticeNo, ErrNotFound)
	}
	return n, err
}

// RecentNotices returns the newest notices, optionally limited to one source
func (s *Store) RecentNotices(ctx context.Context, source string, limit int) ([]*models.BidNotice, error) {
	if limit <= 0 {
		limit = 20
	}
	q := selectNoticeSQL
	var args []any
	if source != "" {
		q += " WHERE source = ?"
		args = append(args, source)
	}
	q += " ORDER BY created_at DESC, id DESC LIMIT ?"
	return s.queryNotices(ctx, q, append(args, limit)...)
}

func (s *Store) queryNotices(ctx context.Context, q string, args ...any) ([]*models.BidNotice, error) {
	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.BidNotice
	for rows.Next() {
		n, err := scanNotice(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

const existingChunk = 500

// ExistingNoticeNumbers returns the subset of numbers already stored
func (s *Store) ExistingNoticeNumbers(ctx context.Context, numbers []string) (map[string]bool, error) {
	existing := make(map[string]bool)
	for start := 0; start < len(numbers); start += existingChunk {
		chunk := numbers[start:min(start+existingChunk, len(numbers))]

		args := make([]any, len(chunk))
		for i, no := range chunk {
			args[i] = no
		}
		q := "SELECT bid_notice_no FROM bid_notices WHERE bid_notice_no IN (?" + strings.Repeat(", ?", len(chunk)-1) + ")"

		rows, err := s.query(ctx, q, args...)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var no string
			if err := rows.Scan(&no); err != nil {
				rows.Close()
				return nil, err
			}
			existing[no] = true
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return existing, nil
}

// FilterNew drops the notices whose number is already stored
func (s *Store) FilterNew(ctx context.Context, notices []*models.BidNotice) ([]*models.BidNotice, error) {
	if len(notices) == 0 {
		return notices, nil
	}
	numbers := make([]string, len(notices))
	for i, n := range notices {
		numbers[i] = n.BidNoticeNo
	}
	existing, err := s.ExistingNoticeNumbers(ctx, numbers)
	if err != nil {
		return nil, fmt.Errorf("check existing notices: %w", err)
	}

	fresh := make([]*models.BidNotice, 0, len(notices))
	seen := make(map[string]bool, len(notices))
	for _, n := range notices {
		if existing[n.BidNoticeNo] || seen[n.BidNoticeNo] {
			continue
		}
		seen[n.BidNoticeNo] = true
		fresh = append(fresh, n)
	}
	return fresh, nil
}
