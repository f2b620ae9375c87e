package models

import (
	"strings"
	"time"
)

// Notice sources
const (
	SourceAPI    = "api"
	SourceScrape = "scrape"
)

// NoticeItem is one row scraped from an organization's listing page
type NoticeItem struct {
	Title      string `json:"title"`
	DetailURL  string `json:"detail_url"`
	PostedDate string `json:"posted_date,omitempty"`
	PostedBy   string `json:"posted_by,omitempty"`
	OrgName    string `json:"org_name"`
	ScrapedAt  string `json:"scraped_at"`
	Category   string `json:"category,omitempty"`
}

// Attachment is a downloadable document linked from a notice
type Attachment struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
	Size     string `json:"size,omitempty"`
}

// NoticeDetail is the content extracted from a notice's detail page
type NoticeDetail struct {
	NoticeID    string       `json:"notice_id"`
	Title       string       `json:"title"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments"`
	OrgName     string       `json:"org_name"`
	ScrapedAt   string       `json:"scraped_at"`
}

// BidNotice is the persisted notice record. Records from the public API carry
// the full government schema; scraped records fill the common subset.
//
// Dates and amounts are nil when the source value was absent or unparseable.
// Y/N flags are nil, "Y" or "N".
type BidNotice struct {
	ID int64 `json:"id,omitempty"`

	BidNoticeNo          string     `json:"bid_notice_no"`
	BidNoticeOrd         string     `json:"bid_notice_ord,omitempty"`
	BidNoticeName        string     `json:"bid_notice_name"`
	ReNoticeYN           *string    `json:"re_notice_yn"`
	RegistrationTypeName string     `json:"rgst_ty_nm,omitempty"`
	NoticeKindName       string     `json:"ntce_kind_nm,omitempty"`
	InternationalBidYN   *string    `json:"intrbid_yn"`
	NoticeDate           *time.Time `json:"bid_notice_dt"`
	RefNo                string     `json:"ref_no,omitempty"`

	NoticeInstitutionCode string `json:"ntce_instt_cd,omitempty"`
	NoticeInstitutionName string `json:"ntce_instt_nm,omitempty"`
	DemandInstitutionCode string `json:"dminstt_cd,omitempty"`
	DemandInstitutionName string `json:"dminstt_nm,omitempty"`
	BidMethodName         string `json:"bid_methd_nm,omitempty"`
	ContractMethodName    string `json:"cntrct_cncls_mthd_nm,omitempty"`
	OfficerName           string `json:"ntce_instt_ofcl_nm,omitempty"`
	OfficerTel            string `json:"ntce_instt_ofcl_tel_no,omitempty"`
	OfficerEmail          string `json:"ntce_instt_ofcl_email_adrs,omitempty"`
	ExecutorName          string `json:"exctv_nm,omitempty"`
	DemandOfficerEmail    string `json:"dminstt_ofcl_email_adrs,omitempty"`

	QualificationRegDeadline *time.Time `json:"bid_qlfct_rgst_dt"`
	JointSupplyReceiptMethod string     `json:"cmmn_spldmd_agrmnt_rcptdoc_methd,omitempty"`
	JointSupplyDeadline      *time.Time `json:"cmmn_spldmd_agrmnt_clse_dt"`
	JointSupplyRegionLimitYN *string    `json:"cmmn_spldmd_corp_rgn_lmt_yn"`
	JointSupplyMethodCode    string     `json:"cmmn_spldmd_methd_cd,omitempty"`
	JointSupplyMethodName    string     `json:"cmmn_spldmd_methd_nm,omitempty"`

	BidBeginDate     *time.Time `json:"bid_begin_dt"`
	BidCloseDate     *time.Time `json:"bid_clse_dt"`
	OpeningDate      *time.Time `json:"openg_dt"`
	OpeningPlace     string     `json:"openg_plce,omitempty"`
	RebidOpeningDate *time.Time `json:"rbid_openg_dt"`
	BriefingDate     *time.Time `json:"dcmtg_oprtn_dt"`
	BriefingPlace    string     `json:"dcmtg_oprtn_plce,omitempty"`

	SpecDocuments   []Attachment `json:"spec_documents,omitempty"`
	StdNoticeDocURL string       `json:"std_ntce_doc_url,omitempty"`
	DetailURL       string       `json:"bid_ntce_dtl_url,omitempty"`
	NoticeURL       string       `json:"bid_ntce_url,omitempty"`

	RebidPermitYN               *string    `json:"rbid_permsn_yn"`
	PQApplyReceiptMethod        string     `json:"pq_appl_doc_rcpt_mthd_nm,omitempty"`
	PQApplyReceiptDate          *time.Time `json:"pq_appl_doc_rcpt_dt"`
	TPEvalApplyMethod           string     `json:"tp_eval_appl_mthd_nm,omitempty"`
	TPEvalApplyDeadline         *time.Time `json:"tp_eval_appl_clse_dt"`
	PerformanceDocReceiptMethod string     `json:"arslt_appl_doc_rcpt_mthd_nm,omitempty"`
	PerformanceDocReceiptDate   *time.Time `json:"arslt_reqstdoc_rcpt_dt"`

	JointContractRegions    []string `json:"jntcontrct_duty_rgn_nms,omitempty"`
	RegionJointContractRate string   `json:"rgn_duty_jntcontrct_rt,omitempty"`
	RegionLimitBasisCode    string   `json:"rgn_lmt_bid_locplc_jdgm_bss_cd,omitempty"`
	RegionLimitBasisName    string   `json:"rgn_lmt_bid_locplc_jdgm_bss_nm,omitempty"`

	DetailBidYN              *string `json:"dtls_bid_yn"`
	BidParticipationLimitYN  *string `json:"bid_prtcpt_lmt_yn"`
	ParticipationFeeYN       *string `json:"bid_prtcpt_fee_paymnt_yn"`
	BidBondYN                *string `json:"bid_grntymny_paymnt_yn"`
	GeneralServiceYN         *string `json:"ppsw_gnrl_srvce_yn"`
	ProductClassLimitYN      *string `json:"prdct_clsfc_lmt_yn"`
	ManufactureYN            *string `json:"mnfct_yn"`
	BranchBidPermitYN        *string `json:"brffc_bidprc_permsn_yn"`
	DesignatedCompetitionYN  *string `json:"dsgnt_cmpt_yn"`
	PerformanceCompetitionYN *string `json:"arslt_cmpt_yn"`
	PQEvalYN                 *string `json:"pq_eval_yn"`
	TPEvalYN                 *string `json:"tp_eval_yn"`
	NoticeDescriptionYN      *string `json:"ntce_dscrpt_yn"`
	InfoBizYN                *string `json:"info_biz_yn"`
	IndustryLimitYN          *string `json:"indstryty_lmt_yn"`

	PriceDecisionMethod     string   `json:"prearng_prce_dcsn_mthd_nm,omitempty"`
	ReservePriceMethod      string   `json:"rsrvtn_prce_re_mkng_mthd_nm,omitempty"`
	TotalPrelimPriceCount   *int64   `json:"tot_prdprc_num"`
	DrawnPrelimPriceCount   *int64   `json:"drwt_prdprc_num"`
	AssignedBudget          *int64   `json:"asign_bdgt_amt"`
	EstimatedPrice          *int64   `json:"presmpt_prce"`
	ParticipationFee        *int64   `json:"bid_prtcpt_fee"`
	VAT                     *int64   `json:"vat"`
	IndustryVAT             *int64   `json:"induty_vat"`
	SuccessfulBidLowerRate  *float64 `json:"sucsfbid_lwlt_rate"`
	SuccessfulBidMethodCode string   `json:"sucsfbid_mthd_cd,omitempty"`
	SuccessfulBidMethodName string   `json:"sucsfbid_mthd_nm,omitempty"`

	CreditorName          string `json:"crdtr_nm,omitempty"`
	ServiceDivisionName   string `json:"srvce_div_nm,omitempty"`
	PurchaseProductList   string `json:"purchs_obj_prdct_list,omitempty"`
	UnifiedNoticeNo       string `json:"unty_ntce_no,omitempty"`
	OrderPlanNo           string `json:"order_plan_unty_no,omitempty"`
	PriorSpecRegNo        string `json:"bf_spec_rgst_no,omitempty"`
	ChangeReason          string `json:"chg_ntce_rsn,omitempty"`
	ProcurementLargeClass string `json:"pub_prcrmnt_lrg_clsfc_nm,omitempty"`
	ProcurementMidClass   string `json:"pub_prcrmnt_mid_clsfc_nm,omitempty"`
	ProcurementClassNo    string `json:"pub_prcrmnt_clsfc_no,omitempty"`
	ProcurementClassName  string `json:"pub_prcrmnt_clsfc_nm,omitempty"`

	RegisteredAt *time.Time `json:"rgst_dt"`
	ChangedAt    *time.Time `json:"chg_dt"`

	// Collection bookkeeping
	Source      string       `json:"source"`
	Content     string       `json:"content,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`

	// Classification
	Category    string   `json:"category,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
	Score       float64  `json:"score"`
	IsProcessed bool     `json:"is_processed"`
	IsMatched   bool     `json:"is_matched"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Valid reports whether the notice carries the two mandatory identifiers
func (n *BidNotice) Valid() bool {
	return strings.TrimSpace(n.BidNoticeNo) != "" && strings.TrimSpace(n.BidNoticeName) != ""
}

// Text fields searched by keyword rules
const (
	FieldAll       = "all"
	FieldTitle     = "title"
	FieldDeptName  = "dept_name"
	FieldWorkClass = "work_class"
	FieldIndustry  = "industry"
	FieldContent   = "content"
)

// TextFields lists the searchable fields in a fixed order
var TextFields = []string{FieldTitle, FieldDeptName, FieldWorkClass, FieldIndustry, FieldContent}

// NoticeText is the searchable projection of a notice used by the classifier
type NoticeText struct {
	NoticeNo  string
	Title     string
	DeptName  string
	WorkClass string
	Industry  string
	Content   string
}

// Field returns the text of one named field, or all fields joined for FieldAll
func (t NoticeText) Field(name string) string {
	switch name {
	case FieldTitle:
		return t.Title
	case FieldDeptName:
		return t.DeptName
	case FieldWorkClass:
		return t.WorkClass
	case FieldIndustry:
		return t.Industry
	case FieldContent:
		return t.Content
	default:
		return joinNonEmpty(t.Title, t.DeptName, t.WorkClass, t.Industry, t.Content)
	}
}

// Text returns the searchable projection of the notice
func (n *BidNotice) Text() NoticeText {
	return NoticeText{
		NoticeNo:  n.BidNoticeNo,
		Title:     n.BidNoticeName,
		DeptName:  joinNonEmpty(n.NoticeInstitutionName, n.DemandInstitutionName),
		WorkClass: joinNonEmpty(n.NoticeKindName, n.ServiceDivisionName, n.BidMethodName),
		Industry:  joinNonEmpty(n.ProcurementLargeClass, n.ProcurementMidClass, n.ProcurementClassName, n.PurchaseProductList),
		Content:   n.Content,
	}
}

func joinNonEmpty(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}
